package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/smazurov/mediaout/internal/encoder"
	"github.com/smazurov/mediaout/internal/engine"
	"github.com/smazurov/mediaout/internal/logging"
	"github.com/smazurov/mediaout/internal/media"
	"github.com/smazurov/mediaout/internal/output"
	"github.com/smazurov/mediaout/internal/settings"
	"github.com/smazurov/mediaout/internal/sinks"
)

// SimulateOptions drives one simulate run.
type SimulateOptions struct {
	Rounds     int
	VideoStart int64
	AudioStart int64
	// AudioFirst sends the audio packets of each round before the video one.
	AudioFirst bool
	JSON       bool
	NoColor    bool
	LogLevel   string
}

// CreateSimulateCmd creates the simulate command.
func CreateSimulateCmd() *cobra.Command {
	opts := SimulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Interleave synthetic packets through a null output",
		Long: `Creates a null_output bound to a 25 fps video encoder and a 50 packet/s audio encoder, ` +
			`feeds them in rounds of one video and two audio packets, and prints the order in which ` +
			`the output received them.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			logging.Initialize(logging.Config{Level: opts.LogLevel, Format: "text"})

			records, err := RunSimulation(opts)
			if err != nil {
				return err
			}
			if opts.JSON {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			if opts.NoColor {
				color.NoColor = true
			}
			rowColor := map[string]*color.Color{
				media.EncoderVideo.String(): color.New(color.FgCyan),
				media.EncoderAudio.String(): color.New(color.FgYellow),
			}

			w := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tTYPE\tDTS\tDTS_USEC\tKEY\tSIZE")
			for i, r := range records {
				line := fmt.Sprintf("%d\t%s\t%d\t%d\t%t\t%d", i, r.Type, r.DTS, r.DTSUsec, r.Keyframe, r.Size)
				if rc, ok := rowColor[r.Type]; ok {
					line = rc.Sprint(line)
				}
				fmt.Fprintln(w, line)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&opts.Rounds, "rounds", "n", 10, "Rounds of one video and two audio packets")
	cmd.Flags().Int64Var(&opts.VideoStart, "video-start", 90000, "First video DTS in 1/90000 units")
	cmd.Flags().Int64Var(&opts.AudioStart, "audio-start", 48000, "First audio DTS in 1/48000 units")
	cmd.Flags().BoolVar(&opts.AudioFirst, "audio-first", false, "Send audio before video in each round")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print as JSON")
	cmd.Flags().BoolVar(&opts.NoColor, "no-color", false, "Disable colored rows")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "warn", "Logging level")
	return cmd
}

// RunSimulation feeds synthetic packets through a fresh null output and
// returns what it received, oldest first. Packets still held for ordering
// when the run ends are not included.
func RunSimulation(opts SimulateOptions) ([]sinks.PacketRecord, error) {
	if opts.Rounds <= 0 {
		return nil, errors.New("rounds must be positive")
	}

	types, err := engine.DefaultTypes()
	if err != nil {
		return nil, err
	}
	manager := output.NewManager(types)
	defer manager.Shutdown()

	s := settings.New()
	s.Set(sinks.SettingHistory, opts.Rounds*3)
	o, err := manager.Create(sinks.NullOutputID, "simulate", s)
	s.Release()
	if err != nil {
		return nil, err
	}

	video := encoder.New("video", media.EncoderVideo)
	audio := encoder.New("audio", media.EncoderAudio)
	defer video.Destroy()
	defer audio.Destroy()
	o.SetVideoEncoder(video)
	o.SetAudioEncoder(audio)

	vgen := encoder.NewSynthetic(video, encoder.SyntheticConfig{Rate: 25, StartDTS: opts.VideoStart})
	agen := encoder.NewSynthetic(audio, encoder.SyntheticConfig{StartDTS: opts.AudioStart})

	if !o.Start() {
		return nil, errors.New("null output did not start")
	}
	for range opts.Rounds {
		if opts.AudioFirst {
			agen.Step()
			agen.Step()
			vgen.Step()
		} else {
			vgen.Step()
			agen.Step()
			agen.Step()
		}
	}

	res, err := o.Procs().Call(context.Background(), "history", nil)
	o.Stop()
	if err != nil {
		return nil, err
	}
	records, _ := res["packets"].([]sinks.PacketRecord)
	return records, nil
}
