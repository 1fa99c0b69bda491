package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mabhi256/heaprecorder/internal/recorder"
	"github.com/mabhi256/heaprecorder/internal/simhost"
	"github.com/mabhi256/heaprecorder/internal/simscript"
	"github.com/mabhi256/heaprecorder/utils"
)

var recordSampleRate uint32

var recordCmd = &cobra.Command{
	Use:   "record [script-file]",
	Short: "Replay an allocation script against the heap-liveness recorder",
	Long: `record loads a YAML allocation script, drives a simulated managed-runtime
host through it, and prints every recorded object still live at the end
together with its allocation stack. Objects allocated in the current GC
generation (generation age 0) are not printed.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: utils.CompleteFilesByExtension([]string{".yaml", ".yml"}, false),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := simscript.Load(args[0])
		if err != nil {
			return err
		}

		host := simhost.New()
		rec := recorder.New(host)
		if recordSampleRate > 0 {
			if err := rec.SetSampleRate(recordSampleRate); err != nil {
				return err
			}
		}

		if err := simscript.Run(host, rec, script); err != nil {
			return err
		}

		return printLiveObjects(rec)
	},
}

func printLiveObjects(rec *recorder.Recorder) error {
	p := message.NewPrinter(language.English)

	if err := rec.PrepareIteration(); err != nil {
		return err
	}
	defer rec.FinishIteration()

	count := 0
	rec.ForEachLiveObject(func(ir recorder.IterationRecord) bool {
		count++
		p.Printf("#%d  %s  %s\n", count, utils.MemorySize(ir.ObjectData.Size), classLabel(ir.ObjectData))
		for _, loc := range ir.Locations {
			fmt.Printf("    at %s (%s:%d)\n", loc.FunctionName, loc.FileName, loc.Line)
		}
		return true
	})

	snap := rec.StateSnapshot()
	p.Printf("\n%d live objects across %d heap records\n", snap["num_object_records"], snap["num_heap_records"])
	return nil
}

func classLabel(data recorder.LiveObjectData) string {
	if data.Class == nil {
		return "<unknown>"
	}
	return *data.Class
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().Uint32VarP(&recordSampleRate, "sample-rate", "r", 0, "record every Nth allocation (default: every allocation)")
}
