// Package api exposes the ledger over a small read-only HTTP surface.
// All writes go through the pipeline; the API never mutates anything.
package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aiscope/aiscope/database"
	"github.com/aiscope/aiscope/model"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Server serves the read API over the database handlers
type Server struct {
	entities  database.EntitiesDBHandlerFunctions
	events    database.EventsDBHandlerFunctions
	briefings database.BriefingsDBHandlerFunctions
	log       *slog.Logger
}

// NewServer creates a read API server
func NewServer(
	entities database.EntitiesDBHandlerFunctions,
	events database.EventsDBHandlerFunctions,
	briefings database.BriefingsDBHandlerFunctions,
	logger *slog.Logger,
) *Server {
	return &Server{
		entities:  entities,
		events:    events,
		briefings: briefings,
		log:       logger,
	}
}

// Router builds the gin engine with all routes registered
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.health)
	router.GET("/briefings/latest", s.latestBriefing)
	router.GET("/entities", s.listEntities)
	router.GET("/entities/:id", s.getEntity)
	router.GET("/entities/:id/events", s.listEntityEvents)
	router.GET("/events", s.listEvents)

	return router
}

// Run starts the HTTP server on the given address and blocks
func (s *Server) Run(addr string) error {
	return s.Router().Run(addr)
}

// EventView is an event enriched with its participants, provenance and
// current novelty label for API responses
type EventView struct {
	*model.Event
	Participants []*model.EventParticipant `json:"participants"`
	SourceURL    string                    `json:"source_url,omitempty"`
	Novelty      *model.NoveltyLabelValue  `json:"novelty,omitempty"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) latestBriefing(c *gin.Context) {
	briefing, err := s.briefings.SelectLatestBriefing()
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no briefing generated yet"})
		return
	}
	if err != nil {
		s.fail(c, "select latest briefing", err)
		return
	}

	c.JSON(http.StatusOK, briefing)
}

func (s *Server) listEntities(c *gin.Context) {
	entityType := model.EntityType(c.Query("type"))
	if !entityType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown or missing entity type"})
		return
	}

	entities, err := s.entities.SelectEntitiesByType(entityType, s.limit(c))
	if err != nil {
		s.fail(c, "select entities", err)
		return
	}
	if entities == nil {
		entities = []*model.Entity{}
	}

	c.JSON(http.StatusOK, entities)
}

func (s *Server) getEntity(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	entity, err := s.entities.SelectEntity(id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}
	if err != nil {
		s.fail(c, "select entity", err)
		return
	}

	c.JSON(http.StatusOK, entity)
}

func (s *Server) listEntityEvents(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	if _, err := s.entities.SelectEntity(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
			return
		}
		s.fail(c, "select entity", err)
		return
	}

	events, err := s.events.SelectEventsForEntity(id, s.limit(c))
	if err != nil {
		s.fail(c, "select events for entity", err)
		return
	}

	views, err := s.enrich(events)
	if err != nil {
		s.fail(c, "enrich events", err)
		return
	}

	c.JSON(http.StatusOK, views)
}

func (s *Server) listEvents(c *gin.Context) {
	events, err := s.events.SelectEventsGlobal(s.limit(c))
	if err != nil {
		s.fail(c, "select events", err)
		return
	}

	views, err := s.enrich(events)
	if err != nil {
		s.fail(c, "enrich events", err)
		return
	}

	c.JSON(http.StatusOK, views)
}

// enrich joins each event with its participants, first source URL and
// current novelty label
func (s *Server) enrich(events []*model.Event) ([]*EventView, error) {
	views := make([]*EventView, 0, len(events))
	for _, event := range events {
		participants, err := s.events.SelectEventParticipants(event.ID)
		if err != nil {
			return nil, err
		}
		if participants == nil {
			participants = []*model.EventParticipant{}
		}

		sourceURL, err := s.events.SelectEventSourceURL(event.ID)
		if err != nil {
			return nil, err
		}

		view := &EventView{
			Event:        event,
			Participants: participants,
			SourceURL:    sourceURL,
		}

		label, err := s.events.SelectLatestNoveltyLabel(event.ID)
		if err == nil {
			view.Novelty = &label.Label
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		views = append(views, view)
	}

	return views, nil
}

func (s *Server) limit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func (s *Server) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (s *Server) fail(c *gin.Context, operation string, err error) {
	s.log.Error("Request failed",
		slog.String("path", c.FullPath()),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
