package bot

// Command constants for Telegram bot commands.
const (
	CommandStart     = "/start"
	CommandHelp      = "/help"
	CommandProfile   = "/profile"
	CommandMood      = "/mood"
	CommandReminders = "/reminders"
	CommandTimezone  = "/tz"
	CommandSubscribe = "/subscribe"
	CommandStatus    = "/status"
	CommandCancel    = "/cancel"
	CommandPingMe    = "/pingme"
	CommandJobs      = "/jobs"
)
