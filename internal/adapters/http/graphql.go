package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
	"github.com/Hogigo/Bus2Hike/internal/core/usecases"
)

// buildSchema creates the GraphQL schema wired to the explorer.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	stopType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Stop",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.Int},
			"name":     &graphql.Field{Type: graphql.String},
			"location": &graphql.Field{Type: geoPointType},
			"distance": &graphql.Field{Type: graphql.Float},
		},
	})

	trailType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Trail",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.Int},
			"external_id":      &graphql.Field{Type: graphql.String},
			"name":             &graphql.Field{Type: graphql.String},
			"description":      &graphql.Field{Type: graphql.String},
			"difficulty":       &graphql.Field{Type: graphql.String},
			"length_km":        &graphql.Field{Type: graphql.Float},
			"duration_minutes": &graphql.Field{Type: graphql.Int},
			"elevation_gain_m": &graphql.Field{Type: graphql.Int},
			"elevation_loss_m": &graphql.Field{Type: graphql.Int},
			"circular":         &graphql.Field{Type: graphql.Boolean},
			"path":             &graphql.Field{Type: graphql.NewList(geoPointType)},
		},
	})

	selectionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Selection",
		Fields: graphql.Fields{
			"stop":  &graphql.Field{Type: stopType},
			"trail": &graphql.Field{Type: trailType},
		},
	})

	visibilityType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Visibility",
		Fields: graphql.Fields{
			"sidebar":     &graphql.Field{Type: graphql.Boolean},
			"all_trails":  &graphql.Field{Type: graphql.Boolean},
			"trail_list":  &graphql.Field{Type: graphql.Boolean},
			"detail_card": &graphql.Field{Type: graphql.Boolean},
			"search_area": &graphql.Field{Type: graphql.Boolean},
		},
	})

	filtersType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Filters",
		Fields: graphql.Fields{
			"radius_km":     &graphql.Field{Type: graphql.Float},
			"difficulty":    &graphql.Field{Type: graphql.String},
			"circular_only": &graphql.Field{Type: graphql.Boolean},
			"max_duration_minutes": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					switch f := p.Source.(type) {
					case domain.SearchFilters:
						return int(f.MaxDuration.Duration().Minutes()), nil
					case *domain.SearchFilters:
						return int(f.MaxDuration.Duration().Minutes()), nil
					}
					return nil, nil
				},
			},
		},
	})

	cameraType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Camera",
		Fields: graphql.Fields{
			"center":      &graphql.Field{Type: geoPointType},
			"distance_m":  &graphql.Field{Type: graphql.Float},
			"heading_deg": &graphql.Field{Type: graphql.Float},
			"pitch_deg":   &graphql.Field{Type: graphql.Float},
		},
	})

	stateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "State",
		Fields: graphql.Fields{
			"version":    &graphql.Field{Type: graphql.Int},
			"selection":  &graphql.Field{Type: selectionType},
			"visibility": &graphql.Field{Type: visibilityType},
			"camera":     &graphql.Field{Type: cameraType},
			"filters":    &graphql.Field{Type: filtersType},
			"loading":    &graphql.Field{Type: graphql.Boolean},
			"in_flight":  &graphql.Field{Type: graphql.Int},
			"last_error": &graphql.Field{Type: graphql.String},
			"trails":     &graphql.Field{Type: graphql.NewList(trailType)},
			"stops":      &graphql.Field{Type: graphql.NewList(stopType)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"state": &graphql.Field{
				Type:        stateType,
				Description: "Current explorer state",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Explorer.Snapshot(), nil
				},
			},
			"trails": &graphql.Field{
				Type:        graphql.NewList(trailType),
				Description: "Trails of the last applied search",
				Args: graphql.FieldConfigArgument{
					"matching": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
					"limit":    &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					snap := deps.Explorer.Snapshot()
					trails := snap.Trails
					if p.Args["matching"].(bool) {
						trails = snap.MatchingTrails()
					}
					if limit := p.Args["limit"].(int); limit >= 0 && limit < len(trails) {
						trails = trails[:limit]
					}
					return trails, nil
				},
			},
			"trail": &graphql.Field{
				Type:        trailType,
				Description: "Get a trail of the current collection by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := int64(p.Args["id"].(int))
					for _, t := range deps.Explorer.Snapshot().Trails {
						if t.ID == id {
							return t, nil
						}
					}
					return nil, nil
				},
			},
			"stops": &graphql.Field{
				Type:        graphql.NewList(stopType),
				Description: "Discovered transit stops",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Explorer.Snapshot().Stops, nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"gesture": &graphql.Field{
				Type:        stateType,
				Description: "Apply a user gesture and return the resulting state",
				Args: graphql.FieldConfigArgument{
					"kind":          &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"id":            &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"radius_km":     &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 0.0},
					"difficulty":    &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"circular_only": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
					"hours":         &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"minutes":       &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					g := usecases.Gesture{
						Kind:         usecases.GestureKind(p.Args["kind"].(string)),
						ID:           int64(p.Args["id"].(int)),
						RadiusKm:     p.Args["radius_km"].(float64),
						Difficulty:   p.Args["difficulty"].(string),
						CircularOnly: p.Args["circular_only"].(bool),
						Hours:        p.Args["hours"].(int),
						Minutes:      p.Args["minutes"].(int),
					}
					if _, err := deps.Explorer.Dispatch(p.Context, g); err != nil {
						return nil, err
					}
					return deps.Explorer.Snapshot(), nil
				},
			},
			"discoverStops": &graphql.Field{
				Type:        graphql.NewList(stopType),
				Description: "Refresh the stop list around a point",
				Args: graphql.FieldConfigArgument{
					"lat":      &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 0.0},
					"lon":      &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 0.0},
					"range_km": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 0.0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Explorer.DiscoverStops(p.Context,
						p.Args["lon"].(float64), p.Args["lat"].(float64), p.Args["range_km"].(float64))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
