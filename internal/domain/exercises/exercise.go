package exercises

import (
	"time"

	"github.com/google/uuid"
)

// Exercise is one extracted movement: a row per clip, uniquely fingerprinted
// by (normalized_url, carousel_index, name). There is no DeletedAt column:
// this store is hard-delete only, so the fingerprint is freed for
// re-ingestion the moment a row is removed instead of staying reserved
// under a soft-deleted row forever.
type Exercise struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`

	SourceURL     string `gorm:"column:url;not null" json:"source_url"`
	NormalizedURL string `gorm:"column:normalized_url;not null;index:idx_exercises_url;uniqueIndex:uq_exercises_fingerprint,priority:1" json:"normalized_url"`
	CarouselIndex int    `gorm:"column:carousel_index;not null;default:1;uniqueIndex:uq_exercises_fingerprint,priority:2" json:"carousel_index"`

	Name        string  `gorm:"column:name;not null;size:200;uniqueIndex:uq_exercises_fingerprint,priority:3" json:"name"`
	ClipPath    string  `gorm:"column:clip_path;not null" json:"clip_path"`
	StartTime   float64 `gorm:"column:start_time;type:decimal(10,3);not null" json:"start_time"`
	EndTime     float64 `gorm:"column:end_time;type:decimal(10,3);not null" json:"end_time"`
	HowTo       string  `gorm:"column:how_to" json:"how_to,omitempty"`
	Benefits    string  `gorm:"column:benefits" json:"benefits,omitempty"`
	Counteracts string  `gorm:"column:counteracts" json:"counteracts,omitempty"`
	RoundsReps  string  `gorm:"column:rounds_reps" json:"rounds_reps,omitempty"`

	FitnessLevel int `gorm:"column:fitness_level;index:idx_exercises_fitness_level" json:"fitness_level"`
	Intensity    int `gorm:"column:intensity;index:idx_exercises_intensity" json:"intensity"`

	VectorID *uuid.UUID `gorm:"type:uuid;column:vector_id" json:"vector_id,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();index:idx_exercises_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (Exercise) TableName() string { return "exercises" }

// Duration returns end_time - start_time.
func (e Exercise) Duration() float64 { return e.EndTime - e.StartTime }

// Fingerprint is the uniqueness tuple enforced by the Exercise Store.
type Fingerprint struct {
	NormalizedURL string
	CarouselIndex int
	Name          string
}

func (e Exercise) Fingerprint() Fingerprint {
	return Fingerprint{NormalizedURL: e.NormalizedURL, CarouselIndex: e.CarouselIndex, Name: e.Name}
}

// Filter narrows a List query. Zero-value fields are not applied.
type Filter struct {
	NormalizedURL    string
	NameContains     string
	MinFitnessLevel  *int
	MaxFitnessLevel  *int
	MinIntensity     *int
	MaxIntensity     *int
	CreatedAfter     *time.Time
	CreatedBefore    *time.Time
	Limit            int
	Offset           int
}
