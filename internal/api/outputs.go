package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/mediaout/internal/api/models"
	"github.com/smazurov/mediaout/internal/output"
	"github.com/smazurov/mediaout/internal/procs"
	"github.com/smazurov/mediaout/internal/properties"
	"github.com/smazurov/mediaout/internal/settings"
)

// registerOutputRoutes registers output lifecycle, settings and procedure
// endpoints.
func (s *Server) registerOutputRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-outputs",
		Method:      http.MethodGet,
		Path:        "/api/outputs",
		Summary:     "List Outputs",
		Description: "Get all registered outputs in creation order",
		Tags:        []string{"outputs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.OutputListResponse, error) {
		outputs := s.manager.Outputs()
		data := make([]models.OutputData, len(outputs))
		for i, o := range outputs {
			data[i] = s.outputToAPI(o)
		}
		return &models.OutputListResponse{
			Body: models.OutputListData{Outputs: data, Count: len(data)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-output",
		Method:      http.MethodGet,
		Path:        "/api/outputs/{name}",
		Summary:     "Get Output",
		Description: "Get one output by name or ID",
		Tags:        []string{"outputs"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.OutputPath) (*models.OutputResponse, error) {
		o, err := s.findOutput(input.Name)
		if err != nil {
			return nil, err
		}
		return &models.OutputResponse{Body: s.outputToAPI(o)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-output",
		Method:      http.MethodPost,
		Path:        "/api/outputs/{name}/start",
		Summary:     "Start Output",
		Description: "Ask the sink to start. Start results are reported on the event stream as output-start with a code; a non-zero code is an asynchronous failure.",
		Tags:        []string{"outputs"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409},
	}, func(_ context.Context, input *models.OutputPath) (*models.OutputActionResponse, error) {
		o, err := s.findOutput(input.Name)
		if err != nil {
			return nil, err
		}
		if o.IsActive() {
			return nil, huma.Error409Conflict("output already active: " + o.Name())
		}
		if !o.Start() {
			return nil, huma.Error409Conflict("output did not start: " + o.Name())
		}
		return actionResponse(o), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-output",
		Method:      http.MethodPost,
		Path:        "/api/outputs/{name}/stop",
		Summary:     "Stop Output",
		Description: "Ask the sink to stop capturing",
		Tags:        []string{"outputs"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.OutputPath) (*models.OutputActionResponse, error) {
		o, err := s.findOutput(input.Name)
		if err != nil {
			return nil, err
		}
		o.Stop()
		return actionResponse(o), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "pause-output",
		Method:      http.MethodPost,
		Path:        "/api/outputs/{name}/pause",
		Summary:     "Pause Output",
		Description: "Toggle pause on a sink that supports it",
		Tags:        []string{"outputs"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404},
	}, func(_ context.Context, input *models.OutputPath) (*models.OutputActionResponse, error) {
		o, err := s.findOutput(input.Name)
		if err != nil {
			return nil, err
		}
		if !o.Pause() {
			return nil, huma.Error400BadRequest("output cannot pause: " + o.Name())
		}
		return actionResponse(o), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-output-settings",
		Method:      http.MethodGet,
		Path:        "/api/outputs/{name}/settings",
		Summary:     "Get Output Settings",
		Description: "Get the output's effective settings",
		Tags:        []string{"outputs"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.OutputPath) (*models.SettingsResponse, error) {
		o, err := s.findOutput(input.Name)
		if err != nil {
			return nil, err
		}
		return settingsResponse(o), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-output-settings",
		Method:      http.MethodPatch,
		Path:        "/api/outputs/{name}/settings",
		Summary:     "Update Output Settings",
		Description: "Merge the given keys into the output's settings and hand them to the sink. Keys not given are kept.",
		Tags:        []string{"outputs"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 500},
	}, func(_ context.Context, input *models.SettingsUpdateRequest) (*models.SettingsResponse, error) {
		o, err := s.findOutput(input.Name)
		if err != nil {
			return nil, err
		}
		if len(input.Body) == 0 {
			return nil, huma.Error400BadRequest("no settings given")
		}

		patch := settings.FromMap(input.Body)
		o.Update(patch)
		patch.Release()

		if s.options.OnSettingsChanged != nil {
			current := o.Settings()
			values := current.Map()
			current.Release()
			if err := s.options.OnSettingsChanged(o.Name(), values); err != nil {
				s.logger.Warn("Failed to persist output settings", "output", o.Name(), "error", err)
				return nil, huma.Error500InternalServerError("settings applied but not saved", err)
			}
		}
		return settingsResponse(o), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-output-properties",
		Method:      http.MethodGet,
		Path:        "/api/outputs/{name}/properties",
		Summary:     "Get Output Properties",
		Description: "Get the output type's properties filled with the current settings",
		Tags:        []string{"outputs"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.PropertiesRequest) (*models.PropertiesResponse, error) {
		o, err := s.findOutput(input.Name)
		if err != nil {
			return nil, err
		}
		list := []properties.Property{}
		if props := o.Properties(input.Locale); props != nil {
			list = props.List()
		}
		return &models.PropertiesResponse{
			Body: models.PropertiesData{
				Output:     o.Name(),
				Locale:     input.Locale,
				Properties: list,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "call-output-proc",
		Method:      http.MethodPost,
		Path:        "/api/outputs/{name}/procs/{proc}",
		Summary:     "Call Output Procedure",
		Description: "Invoke a procedure registered by the output's sink",
		Tags:        []string{"outputs"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409, 500},
	}, func(ctx context.Context, input *models.ProcRequest) (*models.ProcResponse, error) {
		o, err := s.findOutput(input.Name)
		if err != nil {
			return nil, err
		}
		result, err := o.Procs().Call(ctx, input.Proc, procs.Params(input.Body))
		if err != nil {
			return nil, s.mapOutputError(err)
		}
		return &models.ProcResponse{
			Body: models.ProcData{
				Output: o.Name(),
				Proc:   input.Proc,
				Result: result,
			},
		}, nil
	})
}

func (s *Server) outputToAPI(o *output.Output) models.OutputData {
	data := models.OutputData{
		ID:           o.ID(),
		Name:         o.Name(),
		Type:         o.TypeID(),
		Flags:        o.Flags().String(),
		Active:       o.IsActive(),
		CanPause:     o.CanPause(),
		VideoEncoder: o.VideoEncoder().Name(),
		AudioEncoder: o.AudioEncoder().Name(),
		Procs:        o.Procs().Names(),
	}
	if s.engine != nil {
		start, stop := s.engine.NextRun(o.Name())
		data.NextStart = formatTime(start)
		data.NextStop = formatTime(stop)
	}
	return data
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func actionResponse(o *output.Output) *models.OutputActionResponse {
	return &models.OutputActionResponse{
		Body: models.OutputActionData{Output: o.Name(), Active: o.IsActive()},
	}
}

func settingsResponse(o *output.Output) *models.SettingsResponse {
	s := o.Settings()
	defer s.Release()
	return &models.SettingsResponse{
		Body: models.SettingsData{Output: o.Name(), Settings: s.Map()},
	}
}
