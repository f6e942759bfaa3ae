package types

import "time"

// Users seen through Discord OAuth. Username is the last-known value,
// written at login and cross-checked by the session guard on every
// privileged request.
type User struct {
	ID          string `gorm:"primaryKey;size:20"`
	Username    string `gorm:"size:64;not null"`
	AvatarURL   string `gorm:"size:256"`
	LastLoginAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// One row per (user, project); direction 1 = up, -1 = down.
type ProjectVote struct {
	ID        uint64 `gorm:"primaryKey"`
	UserID    string `gorm:"size:20;not null;uniqueIndex:idx_vote_user_project"`
	ProjectID uint32 `gorm:"not null;uniqueIndex:idx_vote_user_project;index"`
	Direction int16  `gorm:"not null"`
	CreatedAt time.Time
}

// One row per completed bingo task.
type BingoProgress struct {
	ID          uint64 `gorm:"primaryKey"`
	UserID      string `gorm:"size:20;not null;uniqueIndex:idx_bingo_user_task"`
	TaskID      uint16 `gorm:"not null;uniqueIndex:idx_bingo_user_task"`
	CompletedAt time.Time
}
