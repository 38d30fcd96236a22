package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/mediaout/internal/api/models"
	"github.com/smazurov/mediaout/internal/properties"
)

const defaultLocale = "en-US"

// registerTypeRoutes registers output type and encoder listings.
func (s *Server) registerTypeRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-output-types",
		Method:      http.MethodGet,
		Path:        "/api/types",
		Summary:     "List Output Types",
		Description: "Get the registered output types with their flags and default properties",
		Tags:        []string{"types"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.TypeListResponse, error) {
		types := s.manager.Types()
		ids := types.IDs()

		data := make([]models.TypeData, 0, len(ids))
		for _, id := range ids {
			info, _ := types.Lookup(id)
			props := []properties.Property{}
			if p := s.manager.TypeProperties(id, defaultLocale); p != nil {
				props = p.List()
			}
			data = append(data, models.TypeData{
				ID:         id,
				Flags:      info.Flags.String(),
				Properties: props,
			})
		}

		return &models.TypeListResponse{
			Body: models.TypeListData{Types: data, Count: len(data)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-encoders",
		Method:      http.MethodGet,
		Path:        "/api/encoders",
		Summary:     "List Encoders",
		Description: "Get the engine's encoders and whether they are feeding outputs",
		Tags:        []string{"encoders"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.EncoderListResponse, error) {
		data := []models.EncoderData{}
		if s.engine != nil {
			for _, name := range s.engine.Config().EncoderNames() {
				enc := s.engine.Encoder(name)
				if enc == nil {
					continue
				}
				data = append(data, models.EncoderData{
					Name:    enc.Name(),
					Type:    enc.Type().String(),
					Active:  enc.Active(),
					Outputs: len(enc.Outputs()),
				})
			}
		}
		return &models.EncoderListResponse{
			Body: models.EncoderListData{Encoders: data, Count: len(data)},
		}, nil
	})
}
