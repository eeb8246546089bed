package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SocialLinks holds the optional social network URLs of a profile.
type SocialLinks struct {
	Youtube   string `json:"youtube,omitempty"`
	Facebook  string `json:"facebook,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	LinkedIn  string `gorm:"column:linkedin" json:"linkedin,omitempty"`
}

// Experience is one work-experience entry of a profile.
type Experience struct {
	ID          string     `json:"_id"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Location    string     `json:"location,omitempty"`
	From        time.Time  `json:"from"`
	To          *time.Time `json:"to,omitempty"`
	Current     bool       `json:"current"`
	Description string     `json:"description,omitempty"`
}

// Education is one education entry of a profile.
type Education struct {
	ID           string     `json:"_id"`
	School       string     `json:"school"`
	Degree       string     `json:"degree"`
	FieldOfStudy string     `json:"fieldofstudy"`
	From         time.Time  `json:"from"`
	To           *time.Time `json:"to,omitempty"`
	Current      bool       `json:"current"`
	Description  string     `json:"description,omitempty"`
}

// Profile is the per-user profile aggregate. Experience and Education are
// owned sequences kept most-recent-first.
type Profile struct {
	ID             string                          `gorm:"primaryKey;type:varchar(36)" json:"_id"`
	UserID         string                          `gorm:"uniqueIndex;not null;type:varchar(36)" json:"-"`
	User           UserSummary                     `gorm:"-" json:"user"`
	Company        string                          `json:"company,omitempty"`
	Website        string                          `json:"website,omitempty"`
	Location       string                          `json:"location,omitempty"`
	Bio            string                          `json:"bio,omitempty"`
	Status         string                          `gorm:"not null" json:"status"`
	GithubUsername string                          `gorm:"column:github_username" json:"githubusername,omitempty"`
	Skills         datatypes.JSONSlice[string]     `json:"skills"`
	Social         SocialLinks                     `gorm:"embedded;embeddedPrefix:social_" json:"social"`
	Experience     datatypes.JSONSlice[Experience] `json:"experience"`
	Education      datatypes.JSONSlice[Education]  `json:"education"`
	Version        int64                           `gorm:"not null" json:"-"`
	CreatedAt      time.Time                       `json:"date"`
	UpdatedAt      time.Time                       `json:"updated_at"`
}

// BeforeCreate assigns an ID and materializes empty sequences.
func (p *Profile) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.normalize()
	return nil
}

// AfterFind keeps sequences non-nil so they serialize as [].
func (p *Profile) AfterFind(_ *gorm.DB) error {
	p.normalize()
	return nil
}

func (p *Profile) normalize() {
	if p.Skills == nil {
		p.Skills = datatypes.JSONSlice[string]{}
	}
	if p.Experience == nil {
		p.Experience = datatypes.JSONSlice[Experience]{}
	}
	if p.Education == nil {
		p.Education = datatypes.JSONSlice[Education]{}
	}
}

// PrependExperience inserts e at the head of the experience sequence.
func (p *Profile) PrependExperience(e Experience) {
	next := make(datatypes.JSONSlice[Experience], 0, len(p.Experience)+1)
	next = append(next, e)
	p.Experience = append(next, p.Experience...)
}

// PrependEducation inserts e at the head of the education sequence.
func (p *Profile) PrependEducation(e Education) {
	next := make(datatypes.JSONSlice[Education], 0, len(p.Education)+1)
	next = append(next, e)
	p.Education = append(next, p.Education...)
}

// RemoveExperience drops the entry with the given ID. It reports whether an
// entry was removed; the order of the remaining entries is unchanged.
func (p *Profile) RemoveExperience(id string) bool {
	for i, e := range p.Experience {
		if e.ID == id {
			next := make(datatypes.JSONSlice[Experience], 0, len(p.Experience)-1)
			next = append(next, p.Experience[:i]...)
			p.Experience = append(next, p.Experience[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveEducation drops the entry with the given ID. See RemoveExperience.
func (p *Profile) RemoveEducation(id string) bool {
	for i, e := range p.Education {
		if e.ID == id {
			next := make(datatypes.JSONSlice[Education], 0, len(p.Education)-1)
			next = append(next, p.Education[:i]...)
			p.Education = append(next, p.Education[i+1:]...)
			return true
		}
	}
	return false
}

// ProfilePatch is a partial profile write. A nil field is absent and is
// neither written on update nor set on create.
type ProfilePatch struct {
	Company        *string
	Website        *string
	Location       *string
	Bio            *string
	Status         *string
	GithubUsername *string
	Skills         []string
	Youtube        *string
	Facebook       *string
	Twitter        *string
	Instagram      *string
	LinkedIn       *string
}

// Columns lists the store columns the patch writes, in a stable order.
func (pp ProfilePatch) Columns() []string {
	var cols []string
	add := func(v *string, col string) {
		if v != nil {
			cols = append(cols, col)
		}
	}
	add(pp.Company, "company")
	add(pp.Website, "website")
	add(pp.Location, "location")
	add(pp.Bio, "bio")
	add(pp.Status, "status")
	add(pp.GithubUsername, "github_username")
	if pp.Skills != nil {
		cols = append(cols, "skills")
	}
	add(pp.Youtube, "social_youtube")
	add(pp.Facebook, "social_facebook")
	add(pp.Twitter, "social_twitter")
	add(pp.Instagram, "social_instagram")
	add(pp.LinkedIn, "social_linkedin")
	return cols
}

// ApplyTo merges the present fields into p, leaving everything else as is.
func (pp ProfilePatch) ApplyTo(p *Profile) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.Company, pp.Company)
	set(&p.Website, pp.Website)
	set(&p.Location, pp.Location)
	set(&p.Bio, pp.Bio)
	set(&p.Status, pp.Status)
	set(&p.GithubUsername, pp.GithubUsername)
	if pp.Skills != nil {
		p.Skills = datatypes.JSONSlice[string](pp.Skills)
	}
	set(&p.Social.Youtube, pp.Youtube)
	set(&p.Social.Facebook, pp.Facebook)
	set(&p.Social.Twitter, pp.Twitter)
	set(&p.Social.Instagram, pp.Instagram)
	set(&p.Social.LinkedIn, pp.LinkedIn)
}
