package cmd

import (
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mabhi256/heaprecorder/internal/recorder"
	"github.com/mabhi256/heaprecorder/internal/simhost"
	"github.com/mabhi256/heaprecorder/internal/simscript"
	"github.com/mabhi256/heaprecorder/utils"
)

var inspectSelfCheck bool

var inspectCmd = &cobra.Command{
	Use:               "inspect [script-file]",
	Short:             "Print the recorder's internal state snapshot after replaying a script",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: utils.CompleteFilesByExtension([]string{".yaml", ".yml"}, false),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := simscript.Load(args[0])
		if err != nil {
			return err
		}

		host := simhost.New()
		rec := recorder.New(host)

		if err := simscript.Run(host, rec, script); err != nil {
			return err
		}

		p := message.NewPrinter(language.English)

		snap := rec.StateSnapshot()
		keys := make([]string, 0, len(snap))
		for k := range snap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p.Printf("%-45s %d\n", k, snap[k])
		}

		if inspectSelfCheck {
			return runSelfCheck(rec)
		}
		return nil
	},
}

func runSelfCheck(rec *recorder.Recorder) error {
	if err := rec.PrepareIteration(); err != nil {
		return err
	}
	defer rec.FinishIteration()

	ok := true
	rec.ForEachLiveObject(func(ir recorder.IterationRecord) bool {
		frames := make([]recorder.Frame, len(ir.Locations))
		for i, loc := range ir.Locations {
			frames[i] = recorder.NewFrame(loc.FunctionName, loc.FileName, int64(loc.Line))
		}
		if !recorder.SelfCheckHash(frames) {
			ok = false
			return false
		}
		return true
	})

	if !ok {
		return &recorder.ContractError{Op: "selfcheck", Msg: "owned and borrowed stack hashes disagree"}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().BoolVar(&inspectSelfCheck, "selfcheck", false, "verify stack hashing agrees for owned and borrowed frame slices")
}
