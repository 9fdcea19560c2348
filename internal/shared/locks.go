package shared

import "fmt"

// JobLockKey builds redis keys for single-runner background jobs.
func JobLockKey(job string) string {
	return fmt.Sprintf("jobs:%s:lock", job)
}
