package cache

import (
	"fmt"
	"strings"
	"time"
)

const (
	PostKeyPrefix        = "post:%s"
	GithubReposKeyPrefix = "github:repos:%s"
)

const (
	// PostTTL bounds cached post fields and delete tombstones alike.
	PostTTL = 2 * time.Minute
)

func PostKey(postID string) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

// GithubReposKey is case-insensitive since GitHub usernames are.
func GithubReposKey(username string) string {
	return fmt.Sprintf(GithubReposKeyPrefix, strings.ToLower(username))
}
