// Package seed populates a database with demo developers, profiles, posts
// and likes. It is intended for development and testing only.
package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"devconnector/internal/middleware"
	"devconnector/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded user.
const DefaultPassword = "password123"

var skillPool = []string{
	"Go", "Rust", "TypeScript", "React", "Node.js", "PostgreSQL", "Redis",
	"Kubernetes", "Docker", "Python", "GraphQL", "AWS", "Terraform", "Vue",
}

var statuses = []string{
	"Developer", "Junior Developer", "Senior Developer", "Manager",
	"Student or Learning", "Instructor or Teacher", "Intern", "Other",
}

// Options controls how much data Seed creates.
type Options struct {
	Users int
	Posts int
	// MaxLikes caps the likes per post.
	MaxLikes int
	// Clean empties the tables first.
	Clean bool
	// SkipBcrypt stores the plain default password. Test use only.
	SkipBcrypt bool
	// Seed makes the generated data reproducible when non-zero.
	Seed int64
}

// Result counts what Seed created.
type Result struct {
	Users    int
	Profiles int
	Posts    int
	Likes    int
}

// Seeder creates demo data through a Gorm DB.
type Seeder struct {
	db   *gorm.DB
	opts Options
	rng  *rand.Rand
}

// NewSeeder returns a Seeder bound to db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gofakeit.Seed(seed)
	if opts.MaxLikes <= 0 {
		opts.MaxLikes = 5
	}
	return &Seeder{db: db, opts: opts, rng: rand.New(rand.NewSource(seed))}
}

// Run seeds the database according to the options.
func (s *Seeder) Run() (Result, error) {
	var res Result

	if s.opts.Clean {
		if err := s.ClearAll(); err != nil {
			return res, fmt.Errorf("failed to clear data: %w", err)
		}
	}

	users, err := s.createUsers(s.opts.Users)
	if err != nil {
		return res, fmt.Errorf("failed to create users: %w", err)
	}
	res.Users = len(users)

	for _, u := range users {
		if _, err := s.CreateProfile(u); err != nil {
			return res, fmt.Errorf("failed to create profile: %w", err)
		}
		res.Profiles++
	}

	if len(users) == 0 {
		return res, nil
	}

	for i := 0; i < s.opts.Posts; i++ {
		author := users[s.rng.Intn(len(users))]
		post, err := s.CreatePost(author)
		if err != nil {
			return res, fmt.Errorf("failed to create post: %w", err)
		}
		res.Posts++

		n, err := s.likePost(post, users)
		if err != nil {
			return res, fmt.Errorf("failed to add likes: %w", err)
		}
		res.Likes += n
	}

	middleware.Logger.Info("database seeded",
		zap.Int("users", res.Users),
		zap.Int("profiles", res.Profiles),
		zap.Int("posts", res.Posts),
		zap.Int("likes", res.Likes),
	)
	return res, nil
}

// ClearAll deletes every row of the application tables, children first.
func (s *Seeder) ClearAll() error {
	for _, m := range []interface{}{&models.Like{}, &models.Post{}, &models.Profile{}, &models.User{}} {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) createUsers(n int) ([]*models.User, error) {
	password := DefaultPassword
	if !s.opts.SkipBcrypt {
		hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		password = string(hashed)
	}

	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		u, err := s.CreateUser(func(u *models.User) { u.Password = password })
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// CreateUser persists a generated user. Overrides run before the insert.
func (s *Seeder) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	first, last := gofakeit.FirstName(), gofakeit.LastName()
	user := &models.User{
		Name:     first + " " + last,
		Email:    strings.ToLower(fmt.Sprintf("%s.%s.%d@example.com", first, last, gofakeit.Number(100, 99999))),
		Password: DefaultPassword,
		Avatar:   fmt.Sprintf("//www.gravatar.com/avatar/%s?s=200&r=pg&d=mm", strings.ReplaceAll(gofakeit.UUID(), "-", "")),
	}
	for _, override := range overrides {
		override(user)
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateProfile persists a generated profile for user with a couple of
// experience and education entries, newest first.
func (s *Seeder) CreateProfile(user *models.User) (*models.Profile, error) {
	profile := &models.Profile{
		UserID:         user.ID,
		Company:        gofakeit.Company(),
		Website:        gofakeit.URL(),
		Location:       gofakeit.City() + ", " + gofakeit.StateAbr(),
		Bio:            gofakeit.Sentence(12),
		Status:         statuses[s.rng.Intn(len(statuses))],
		GithubUsername: strings.ToLower(gofakeit.Username()),
		Skills:         datatypes.JSONSlice[string](s.pickSkills(2 + s.rng.Intn(4))),
		Social: models.SocialLinks{
			Twitter:  "https://twitter.com/" + gofakeit.Username(),
			LinkedIn: "https://linkedin.com/in/" + gofakeit.Username(),
		},
	}

	start := time.Now().AddDate(-10, 0, 0)
	for i := 0; i < 1+s.rng.Intn(3); i++ {
		from := start.AddDate(i*2, 0, 0)
		to := from.AddDate(2, 0, 0)
		profile.PrependExperience(models.Experience{
			ID:          uuid.NewString(),
			Title:       gofakeit.JobTitle(),
			Company:     gofakeit.Company(),
			Location:    gofakeit.City(),
			From:        from,
			To:          &to,
			Description: gofakeit.Sentence(10),
		})
	}
	profile.PrependEducation(models.Education{
		ID:           uuid.NewString(),
		School:       gofakeit.City() + " University",
		Degree:       "BSc",
		FieldOfStudy: "Computer Science",
		From:         start.AddDate(-4, 0, 0),
		To:           &start,
	})

	if err := s.db.Create(profile).Error; err != nil {
		return nil, err
	}
	return profile, nil
}

// CreatePost persists a generated post by author, dated within the last
// ninety days.
func (s *Seeder) CreatePost(author *models.User) (*models.Post, error) {
	age := time.Duration(s.rng.Intn(90*24*60)) * time.Minute
	post := &models.Post{
		UserID:    author.ID,
		Text:      gofakeit.Paragraph(1, 3, 12, " "),
		Name:      author.Name,
		Avatar:    author.Avatar,
		CreatedAt: time.Now().Add(-age),
	}
	if err := s.db.Create(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

func (s *Seeder) likePost(post *models.Post, users []*models.User) (int, error) {
	n := s.rng.Intn(s.opts.MaxLikes + 1)
	if n > len(users) {
		n = len(users)
	}
	for _, i := range s.rng.Perm(len(users))[:n] {
		like := &models.Like{PostID: post.ID, UserID: users[i].ID}
		if err := s.db.Create(like).Error; err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (s *Seeder) pickSkills(n int) []string {
	if n > len(skillPool) {
		n = len(skillPool)
	}
	skills := make([]string, 0, n)
	for _, i := range s.rng.Perm(len(skillPool))[:n] {
		skills = append(skills, skillPool[i])
	}
	return skills
}
