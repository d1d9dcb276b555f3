// Package workspace provisions the per-user container every identity points at.
package workspace

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/EmpoweredVote/EV-Dashboard/internal/db"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Workspace struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Owner     string    `gorm:"not null;uniqueIndex:workspaces_owner_unique" json:"owner"`
	Name      string    `gorm:"not null" json:"name"`
	Slug      string    `gorm:"not null;index" json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

func (Workspace) TableName() string { return "app_dashboard.workspaces" }

func Init() {
	if err := db.EnsureSchema(db.DB, "app_dashboard"); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema app_dashboard")
	}
	if err := db.DB.AutoMigrate(&Workspace{}); err != nil {
		log.Fatal().Err(err).Msg("Failed to auto-migrate workspaces")
	}
}

// GetOrCreate returns the workspace owned by owner, creating it with name when
// absent. Pass the caller's transaction so a failed user insert also discards
// a freshly created workspace.
func GetOrCreate(tx *gorm.DB, owner, name string) (*Workspace, error) {
	ws := Workspace{
		ID:    uuid.New(),
		Owner: owner,
		Name:  name,
		Slug:  Slugify(name),
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner"}},
		DoNothing: true,
	}).Create(&ws).Error; err != nil {
		return nil, fmt.Errorf("create workspace for %q: %w", owner, err)
	}

	var existing Workspace
	if err := tx.First(&existing, "owner = ?", owner).Error; err != nil {
		return nil, fmt.Errorf("load workspace for %q: %w", owner, err)
	}
	return &existing, nil
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify turns a display name into a lowercase, dash separated identifier.
// "Zoë's Portfolio" becomes "zoes-portfolio".
func Slugify(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "workspace"
	}
	return slug
}
