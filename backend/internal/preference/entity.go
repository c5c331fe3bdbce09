// Package preference holds per-user procurement and chat preferences and
// turns them into context for the workflow engine.
package preference

import (
	"slices"
	"time"
)

type Category string

const (
	CategorySoftwareDevelopment Category = "software_development"
	CategoryHardwareProcurement Category = "hardware_procurement"
	CategoryConsultingService   Category = "consulting_service"
	CategorySystemIntegration   Category = "system_integration"
	CategoryGeneralProcurement  Category = "general_procurement"
)

type QualityPriorityType string

const (
	QualityPriorityQuality  QualityPriorityType = "quality"
	QualityPriorityPrice    QualityPriorityType = "price"
	QualityPriorityBalanced QualityPriorityType = "balanced"
)

type ReplyStyle string

const (
	ReplyStyleConcise      ReplyStyle = "concise"
	ReplyStyleDetailed     ReplyStyle = "detailed"
	ReplyStyleProfessional ReplyStyle = "professional"
)

type Voice string

const (
	VoiceXiaomei   Voice = "xiaomei"
	VoiceXiaoshuai Voice = "xiaoshuai"
)

// PriceRange is a budget in yuan. A zero Max means no upper bound.
type PriceRange struct {
	Min int64 `json:"min" yaml:"min"`
	Max int64 `json:"max" yaml:"max"`
}

func (r PriceRange) Bounded() bool {
	return r.Min > 0 && r.Max > 0
}

type QualityPriority struct {
	Type   QualityPriorityType `json:"type" yaml:"type"`
	Weight float64             `json:"weight" yaml:"weight"`
}

type Procurement struct {
	DefaultCategory     Category        `json:"defaultCategory" yaml:"default_category"`
	PreferredSuppliers  []string        `json:"preferredSuppliers" yaml:"preferred_suppliers"`
	PreferredPriceRange PriceRange      `json:"preferredPriceRange" yaml:"preferred_price_range"`
	DeliveryLocation    string          `json:"deliveryLocation" yaml:"delivery_location"`
	QualityPriority     QualityPriority `json:"qualityPriority" yaml:"quality_priority"`
	PaymentTerms        string          `json:"paymentTerms" yaml:"payment_terms"`
}

type Chat struct {
	ReplyStyle   ReplyStyle `json:"replyStyle" yaml:"reply_style"`
	Language     string     `json:"language" yaml:"language"`
	Voice        Voice      `json:"voice" yaml:"voice"`
	EnableStream bool       `json:"enableStream" yaml:"enable_stream"`
}

type Feature struct {
	AutoSaveWishlist    bool `json:"autoSaveWishlist" yaml:"auto_save_wishlist"`
	ShowPriceComparison bool `json:"showPriceComparison" yaml:"show_price_comparison"`
	EnableNotifications bool `json:"enableNotifications" yaml:"enable_notifications"`
	DarkMode            bool `json:"darkMode" yaml:"dark_mode"`
}

type SatisfiedQuery struct {
	Query     string    `json:"query" yaml:"query"`
	ContextID string    `json:"contextId" yaml:"context_id"`
	Category  Category  `json:"category" yaml:"category"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

type DissatisfiedQuery struct {
	Query     string    `json:"query" yaml:"query"`
	Reason    string    `json:"reason" yaml:"reason"`
	Category  Category  `json:"category" yaml:"category"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

type Learning struct {
	SatisfiedQueries    []SatisfiedQuery    `json:"satisfiedQueries" yaml:"satisfied_queries"`
	DissatisfiedQueries []DissatisfiedQuery `json:"dissatisfiedQueries" yaml:"dissatisfied_queries"`
	CategoryFrequency   map[Category]int    `json:"categoryFrequency" yaml:"category_frequency"`
}

type Preference struct {
	UserID         string      `json:"userId" yaml:"user_id"`
	Procurement    Procurement `json:"procurementPreferences" yaml:"procurement"`
	Chat           Chat        `json:"chatPreferences" yaml:"chat"`
	Feature        Feature     `json:"featurePreferences" yaml:"feature"`
	Learning       Learning    `json:"learningData" yaml:"learning"`
	Version        int64       `json:"version" yaml:"version"`
	LastAnalyzedAt *time.Time  `json:"lastAnalyzedAt,omitempty" yaml:"last_analyzed_at,omitempty"`
	CreatedAt      time.Time   `json:"createdAt" yaml:"created_at"`
	UpdatedAt      time.Time   `json:"updatedAt" yaml:"updated_at"`
}

// Default returns the preference a user has before saving anything.
func Default(userID string) *Preference {
	return &Preference{
		UserID: userID,
		Procurement: Procurement{
			PreferredSuppliers: []string{},
			QualityPriority:    QualityPriority{Type: QualityPriorityBalanced, Weight: 0.5},
		},
		Chat: Chat{
			ReplyStyle:   ReplyStyleProfessional,
			Language:     "zh-CN",
			Voice:        VoiceXiaoshuai,
			EnableStream: true,
		},
		Feature: Feature{
			ShowPriceComparison: true,
			EnableNotifications: true,
		},
		Learning: Learning{
			SatisfiedQueries:    []SatisfiedQuery{},
			DissatisfiedQueries: []DissatisfiedQuery{},
			CategoryFrequency:   map[Category]int{},
		},
		Version: 1,
	}
}

func (p *Preference) Clone() *Preference {
	out := *p
	out.Procurement.PreferredSuppliers = slices.Clone(p.Procurement.PreferredSuppliers)
	out.Learning.SatisfiedQueries = slices.Clone(p.Learning.SatisfiedQueries)
	out.Learning.DissatisfiedQueries = slices.Clone(p.Learning.DissatisfiedQueries)
	out.Learning.CategoryFrequency = make(map[Category]int, len(p.Learning.CategoryFrequency))
	for k, v := range p.Learning.CategoryFrequency {
		out.Learning.CategoryFrequency[k] = v
	}
	if p.LastAnalyzedAt != nil {
		t := *p.LastAnalyzedAt
		out.LastAnalyzedAt = &t
	}
	return &out
}
