package http

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/core/usecases"
	"github.com/samirrijal/huddle/internal/pkg/validation"
)

type locationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

func (r *locationRequest) coordinate() domain.Coordinate {
	return domain.Coordinate{Latitude: *r.Latitude, Longitude: *r.Longitude}
}

type createGroupRequest struct {
	CreatorID   string           `json:"creatorId" validate:"required,max=128"`
	CreatorName string           `json:"creatorName" validate:"max=100"`
	Name        string           `json:"name" validate:"required,max=100"`
	Radius      float64          `json:"radius" validate:"required,gt=0"`
	Center      *locationRequest `json:"centerLocation" validate:"omitempty"`
}

type membershipRequest struct {
	EntityID   string `json:"entityId" validate:"required,max=128"`
	EntityName string `json:"entityName" validate:"max=100"` // join only
}

type messageRequest struct {
	SenderID   string `json:"senderId" validate:"required,max=128"`
	SenderName string `json:"senderName" validate:"max=100"`
	Text       string `json:"text" validate:"required"`
}

// parseBody decodes and validates a JSON request body. It writes nothing;
// callers answer a non-nil error with writeError and stop.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}
	return validation.Request(out)
}

// queryFloat reads an optional float query parameter.
func queryFloat(c *fiber.Ctx, name string, def float64) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", name, domain.ErrInvalidInput)
	}
	return v, nil
}

// ReportLocationHandler indexes an entity's position and syncs its groups.
func ReportLocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		var req locationRequest
		if err := parseBody(c, &req); err != nil {
			return writeError(c, err)
		}

		entry, err := deps.Locations.Report(c.UserContext(), id, req.coordinate())
		if err != nil {
			if entry == nil {
				return writeError(c, err)
			}
			// Indexed, but the membership sync did not complete.
			LoggerFromCtx(c.UserContext()).Warn("membership sync failed", "entity_id", id, "error", err)
			c.Set(DegradedHeader, "membership-sync")
			return c.Status(fiber.StatusAccepted).JSON(entry)
		}
		return c.JSON(entry)
	}
}

// EntityNearbyHandler returns entities near the given entity. A newer query
// for the same entity supersedes one still running.
func EntityNearbyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		radius, err := queryFloat(c, "radius", 0)
		if err != nil {
			return writeError(c, err)
		}

		hits, err := deps.Tracker.Query(c.UserContext(), c.Params("id"), radius)
		if err != nil {
			return degraded(c, err, []domain.NearbyEntity{})
		}
		return c.JSON(hits)
	}
}

// NearbyHandler returns entities within a radius of a point.
func NearbyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("lat") == "" || c.Query("lon") == "" {
			return errBadRequest(c, "lat and lon are required")
		}
		lat, err := queryFloat(c, "lat", 0)
		if err != nil {
			return writeError(c, err)
		}
		lon, err := queryFloat(c, "lon", 0)
		if err != nil {
			return writeError(c, err)
		}
		radius, err := queryFloat(c, "radius", deps.Proximity.DefaultRadius())
		if err != nil {
			return writeError(c, err)
		}

		center := domain.Coordinate{Latitude: lat, Longitude: lon}
		hits, err := deps.Proximity.QueryNearby(c.UserContext(), center, radius, c.Query("exclude"))
		if err != nil {
			return degraded(c, err, []domain.NearbyEntity{})
		}
		return c.JSON(hits)
	}
}

// MemberGroupsHandler lists the groups an entity belongs to, nearest first.
func MemberGroupsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		groups, err := deps.Membership.MemberGroupsFor(c.UserContext(), c.Params("id"))
		if err != nil {
			return degraded(c, err, emptyPage())
		}
		return paginate(c, groups)
	}
}

// AvailableGroupsHandler lists active groups covering the entity's location
// that it has not joined.
func AvailableGroupsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		groups, err := deps.Membership.AvailableGroupsFor(c.UserContext(), c.Params("id"))
		if err != nil {
			return degraded(c, err, emptyPage())
		}
		return paginate(c, groups)
	}
}

// CreateGroupHandler creates a group centred on the given location, or on the
// creator's indexed location when none is given.
func CreateGroupHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createGroupRequest
		if err := parseBody(c, &req); err != nil {
			return writeError(c, err)
		}

		ctx := c.UserContext()
		var (
			id  string
			err error
		)
		name := usecases.WithDisplayName(req.CreatorName)
		if req.Center != nil {
			center := req.Center.coordinate()
			id, err = deps.Membership.CreateGroup(ctx, req.CreatorID, &center, req.Name, req.Radius, name)
		} else {
			id, err = deps.Membership.CreateGroupForEntity(ctx, req.CreatorID, req.Name, req.Radius, name)
		}
		if err != nil {
			return writeError(c, err)
		}

		group, err := deps.Membership.GetGroup(ctx, id)
		if err != nil {
			return writeError(c, err)
		}
		c.Location("/v1/groups/" + id)
		return c.Status(fiber.StatusCreated).JSON(group)
	}
}

// GetGroupHandler returns a single group by ID.
func GetGroupHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		group, err := deps.Membership.GetGroup(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(group)
	}
}

// JoinGroupHandler adds an entity to a group it is within range of.
func JoinGroupHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req membershipRequest
		if err := parseBody(c, &req); err != nil {
			return writeError(c, err)
		}
		err := deps.Membership.JoinGroup(c.UserContext(), req.EntityID, c.Params("id"), usecases.WithDisplayName(req.EntityName))
		if err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// LeaveGroupHandler removes an entity from a group.
func LeaveGroupHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req membershipRequest
		if err := parseBody(c, &req); err != nil {
			return writeError(c, err)
		}
		if err := deps.Membership.LeaveGroup(c.UserContext(), req.EntityID, c.Params("id")); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// SendMessageHandler appends a chat message to a group.
func SendMessageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req messageRequest
		if err := parseBody(c, &req); err != nil {
			return writeError(c, err)
		}
		msg, err := deps.Chat.Send(c.UserContext(), c.Params("id"), req.SenderID, req.SenderName, req.Text)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(msg)
	}
}
