// Package bot manages the optional chat-bot notification channel.
//
// [Manager] owns the session lifecycle: Unconfigured, Configured (a session
// exists for a token) and Connected (a recipient has registered with /start).
// Sessions are created through a [SessionFactory]; [TelegramFactory] backs
// them with the Telegram Bot API using long polling.
package bot
