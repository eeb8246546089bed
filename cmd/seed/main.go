// Command seed fills the database with demo developers, profiles and posts.
package main

import (
	"flag"

	"devconnector/internal/config"
	"devconnector/internal/database"
	"devconnector/internal/middleware"
	"devconnector/internal/seed"

	"go.uber.org/zap"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of users to create")
	numPosts := flag.Int("posts", 100, "Number of posts to create")
	maxLikes := flag.Int("max-likes", 5, "Maximum likes per post")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	fast := flag.Bool("fast", false, "Store plain passwords instead of bcrypt hashes")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		middleware.Logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if cfg.IsProduction() {
		middleware.Logger.Fatal("refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		middleware.Logger.Fatal("failed to connect to database", zap.Error(err))
	}

	res, err := seed.NewSeeder(db, seed.Options{
		Users:      *numUsers,
		Posts:      *numPosts,
		MaxLikes:   *maxLikes,
		Clean:      *shouldClean,
		SkipBcrypt: *fast,
	}).Run()
	if err != nil {
		middleware.Logger.Fatal("seeding failed", zap.Error(err))
	}

	middleware.Logger.Info("seeding complete",
		zap.Int("users", res.Users),
		zap.Int("posts", res.Posts),
		zap.String("password", seed.DefaultPassword),
	)
}
