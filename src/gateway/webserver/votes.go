package webserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/fluffle-tools/gateway/src/gateway/data"
	"github.com/fluffle-tools/gateway/src/gateway/projects"
	"github.com/fluffle-tools/gateway/src/gateway/types"
)

type Votes struct {
	db  *gorm.DB
	rdb *redis.Client
	log zerolog.Logger
}

func NewVotes(db *gorm.DB, rdb *redis.Client, logger zerolog.Logger) Votes {
	return Votes{db: db, rdb: rdb, log: logger.With().Str("component", "votes").Logger()}
}

// HasUpvoted reports whether a user has an upvote on a project. Public
// read; both parameters are validated before the database is touched.
func (v Votes) HasUpvoted(c *gin.Context) {
	userID := c.Query("userId")
	if !snowflakeRe.MatchString(userID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad userId"})
		return
	}
	projectID, ok := projects.ParseID(c.Query("projectId"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad projectId"})
		return
	}

	var n int64
	if err := v.db.Model(&types.ProjectVote{}).
		Where("user_id = ? AND project_id = ? AND direction = 1", userID, projectID).
		Count(&n).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hasUpvoted": n > 0})
}

// Cast records an up or down vote for the authenticated user,
// replacing any previous vote on the same project.
func (v Votes) Cast(c *gin.Context) {
	var req struct {
		ProjectID string `json:"projectId" binding:"required"`
		Direction string `json:"direction" binding:"required,oneof=up down"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	projectID, ok := projects.ParseID(req.ProjectID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown project"})
		return
	}
	userID := c.GetString(ctxUserID)

	direction := int16(1)
	if req.Direction == "down" {
		direction = -1
	}

	err := v.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND project_id = ?", userID, projectID).
			Delete(&types.ProjectVote{}).Error; err != nil {
			return err
		}
		return tx.Create(&types.ProjectVote{
			UserID:    userID,
			ProjectID: projectID,
			Direction: direction,
		}).Error
	})
	if err != nil {
		v.log.Error().Err(err).Str("userId", userID).Uint32("projectId", projectID).Msg("vote write failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote failed"})
		return
	}

	_ = data.InvalidateVoteCounts(c, v.rdb)
	c.Status(http.StatusCreated)
}

// Withdraw removes the authenticated user's vote on a project.
func (v Votes) Withdraw(c *gin.Context) {
	projectID, ok := projects.ParseID(c.Query("projectId"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown project"})
		return
	}
	userID := c.GetString(ctxUserID)

	if err := v.db.Where("user_id = ? AND project_id = ?", userID, projectID).
		Delete(&types.ProjectVote{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote removal failed"})
		return
	}
	_ = data.InvalidateVoteCounts(c, v.rdb)
	c.Status(http.StatusNoContent)
}

// Counts returns per-project aggregates, cached in redis between reads.
func (v Votes) Counts(c *gin.Context) {
	if cached, ok := data.CachedVoteCounts(c, v.rdb); ok {
		c.JSON(http.StatusOK, gin.H{"counts": stringKeyed(cached)})
		return
	}

	type agg struct {
		ProjectID uint32
		Direction int16
		Count     int64
	}
	var rows []agg
	if err := v.db.Model(&types.ProjectVote{}).
		Select("project_id, direction, count(*) as count").
		Group("project_id, direction").
		Scan(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote aggregation failed"})
		return
	}

	counts := make(map[uint32]data.VoteCounts)
	for _, r := range rows {
		entry := counts[r.ProjectID]
		if r.Direction == 1 {
			entry.Up = r.Count
		} else {
			entry.Down = r.Count
		}
		counts[r.ProjectID] = entry
	}
	_ = data.StoreVoteCounts(c, v.rdb, counts)
	c.JSON(http.StatusOK, gin.H{"counts": stringKeyed(counts)})
}

// JSON object keys must be strings; uint keys would marshal but be
// inconsistent with the rest of the API surface.
func stringKeyed(in map[uint32]data.VoteCounts) map[string]data.VoteCounts {
	out := make(map[string]data.VoteCounts, len(in))
	for k, v := range in {
		out[strconv.FormatUint(uint64(k), 10)] = v
	}
	return out
}
