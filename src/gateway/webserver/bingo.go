package webserver

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/fluffle-tools/gateway/src/gateway/types"
)

// BingoCardSize fixes the card at 5x5; valid task ids are 0..24.
const BingoCardSize = 25

type Bingo struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewBingo(db *gorm.DB, logger zerolog.Logger) Bingo {
	return Bingo{db: db, log: logger.With().Str("component", "bingo").Logger()}
}

// Get returns the caller's completed-task set in ascending order.
func (b Bingo) Get(c *gin.Context) {
	userID := c.GetString(ctxUserID)

	var rows []types.BingoProgress
	if err := b.db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "progress lookup failed"})
		return
	}
	completed := make([]uint16, 0, len(rows))
	for _, r := range rows {
		completed = append(completed, r.TaskID)
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i] < completed[j] })
	c.JSON(http.StatusOK, gin.H{"completed": completed})
}

// Put replaces the caller's completed-task set wholesale.
func (b Bingo) Put(c *gin.Context) {
	var req struct {
		Completed []uint16 `json:"completed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	seen := make(map[uint16]bool, len(req.Completed))
	for _, id := range req.Completed {
		if id >= BingoCardSize || seen[id] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad task id"})
			return
		}
		seen[id] = true
	}
	userID := c.GetString(ctxUserID)

	now := time.Now()
	err := b.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&types.BingoProgress{}).Error; err != nil {
			return err
		}
		if len(req.Completed) == 0 {
			return nil
		}
		rows := make([]types.BingoProgress, 0, len(req.Completed))
		for _, id := range req.Completed {
			rows = append(rows, types.BingoProgress{UserID: userID, TaskID: id, CompletedAt: now})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		b.log.Error().Err(err).Str("userId", userID).Msg("progress write failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "progress write failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete clears the caller's progress entirely.
func (b Bingo) Delete(c *gin.Context) {
	userID := c.GetString(ctxUserID)
	if err := b.db.Where("user_id = ?", userID).Delete(&types.BingoProgress{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "progress delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
