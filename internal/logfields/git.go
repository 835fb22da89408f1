package logfields

import "go.uber.org/zap"

func PullRequest(val int) zap.Field {
	return zap.Int("github.pull_request", val)
}

func Repository(val string) zap.Field {
	return zap.String("git.repository", val)
}

func RepositoryOwner(val string) zap.Field {
	return zap.String("github.repository_owner", val)
}

func BaseBranch(val string) zap.Field {
	return zap.String("git.base_branch", val)
}

func FeatureBranch(val string) zap.Field {
	return zap.String("git.feature_branch", val)
}

func BuildNumber(val int64) zap.Field {
	return zap.Int64("run.build_number", val)
}
