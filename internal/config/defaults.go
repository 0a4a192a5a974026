package config

// Defaults returns the default configuration. Credentials default to
// environment placeholders so a generated config file picks them up from the
// environment at load time.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:               "info",
			SaveDir:                "~/.ragbot/saved_files",
			DownloadTimeoutSeconds: 60,
			MaxConcurrentEvents:    3,
		},
		Slack: SlackConfig{
			BotToken: "${SLACK_BOT_TOKEN}",
			AppToken: "${SLACK_APP_TOKEN}",
		},
		GitHub: GitHubConfig{
			Token: "${GITHUB_TOKEN}",
			Owner: "${GITHUB_OWNER}",
			Repo:  "${GITHUB_REPO}",
		},
		Knowledge: KnowledgeConfig{
			DBPath:       "~/.ragbot/knowledge.db",
			ChunkSize:    256,
			ChunkOverlap: 32,
			SearchTopK:   4,
		},
	}
}
