package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/huddle/internal/core/domain"
)

// buildSchema creates the read-only GraphQL schema wired to our services.
// Fields resolve through the json tags of the domain types.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"latitude":  &graphql.Field{Type: graphql.Float},
			"longitude": &graphql.Field{Type: graphql.Float},
		},
	})

	nearbyEntityType := graphql.NewObject(graphql.ObjectConfig{
		Name: "NearbyEntity",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"location":    &graphql.Field{Type: coordinateType},
			"geohash":     &graphql.Field{Type: graphql.String},
			"distance":    &graphql.Field{Type: graphql.Float, Description: "Meters from the query centre"},
			"lastUpdated": &graphql.Field{Type: graphql.DateTime},
		},
	})

	groupType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LocationGroup",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"name":             &graphql.Field{Type: graphql.String},
			"creatorId":        &graphql.Field{Type: graphql.String},
			"creatorName":      &graphql.Field{Type: graphql.String},
			"centerLocation":   &graphql.Field{Type: coordinateType},
			"radius":           &graphql.Field{Type: graphql.Float},
			"participants":     &graphql.Field{Type: graphql.NewList(graphql.String)},
			"participantCount": &graphql.Field{Type: graphql.Int},
			"lastMessage":      &graphql.Field{Type: graphql.String},
			"lastMessageTime":  &graphql.Field{Type: graphql.DateTime},
			"isActive":         &graphql.Field{Type: graphql.Boolean},
			"createdAt":        &graphql.Field{Type: graphql.DateTime},
		},
	})

	groupWithDistanceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GroupWithDistance",
		Fields: graphql.Fields{
			"group":    &graphql.Field{Type: groupType},
			"distance": &graphql.Field{Type: graphql.Float},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"nearby": &graphql.Field{
				Type:        graphql.NewList(nearbyEntityType),
				Description: "Entities within a radius of a point, nearest first",
				Args: graphql.FieldConfigArgument{
					"lat":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius":  &graphql.ArgumentConfig{Type: graphql.Float},
					"exclude": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					center := domain.Coordinate{
						Latitude:  p.Args["lat"].(float64),
						Longitude: p.Args["lon"].(float64),
					}
					radius, ok := p.Args["radius"].(float64)
					if !ok {
						radius = deps.Proximity.DefaultRadius()
					}
					hits, err := deps.Proximity.QueryNearby(p.Context, center, radius, p.Args["exclude"].(string))
					return orEmpty(p.Context, hits, err)
				},
			},
			"entityNearby": &graphql.Field{
				Type:        graphql.NewList(nearbyEntityType),
				Description: "Entities near an entity's indexed location",
				Args: graphql.FieldConfigArgument{
					"id":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"radius": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 0.0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					hits, err := deps.Tracker.Query(p.Context, p.Args["id"].(string), p.Args["radius"].(float64))
					return orEmpty(p.Context, hits, err)
				},
			},
			"memberGroups": &graphql.Field{
				Type:        graphql.NewList(groupWithDistanceType),
				Description: "Groups the entity belongs to",
				Args: graphql.FieldConfigArgument{
					"entityId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					groups, err := deps.Membership.MemberGroupsFor(p.Context, p.Args["entityId"].(string))
					return orEmpty(p.Context, groups, err)
				},
			},
			"availableGroups": &graphql.Field{
				Type:        graphql.NewList(groupWithDistanceType),
				Description: "Active groups covering the entity that it has not joined",
				Args: graphql.FieldConfigArgument{
					"entityId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					groups, err := deps.Membership.AvailableGroupsFor(p.Context, p.Args["entityId"].(string))
					return orEmpty(p.Context, groups, err)
				},
			},
			"group": &graphql.Field{
				Type:        groupType,
				Description: "Get a group by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Membership.GetGroup(p.Context, p.Args["id"].(string))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// orEmpty turns an unreachable index into an empty list.
func orEmpty[T any](ctx context.Context, items []T, err error) (interface{}, error) {
	if errors.Is(err, domain.ErrIndexUnavailable) {
		LoggerFromCtx(ctx).Warn("graphql serving degraded result", "error", err)
		return []T{}, nil
	}
	if err != nil {
		return nil, err
	}
	return items, nil
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
			return errBadRequest(c, "invalid request body")
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
