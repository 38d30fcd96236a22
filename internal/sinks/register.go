package sinks

import "github.com/smazurov/mediaout/internal/output"

// Register adds the built-in output types to types.
func Register(types *output.Types) error {
	for _, info := range []output.TypeInfo{
		{
			ID:         NullOutputID,
			Flags:      output.FlagEncoded | output.FlagAV,
			Create:     newNullOutput,
			Defaults:   nullDefaults,
			Properties: nullProperties,
		},
		{
			ID:         RawMonitorID,
			Flags:      output.FlagAV,
			Create:     newRawMonitor,
			Defaults:   rawDefaults,
			Properties: rawProperties,
		},
	} {
		if err := types.Register(info); err != nil {
			return err
		}
	}
	return nil
}
