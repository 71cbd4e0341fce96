// Package tgui provides small Telegram UI helpers:
//   - HTML escaping and building blocks for ParseMode="HTML"
//   - Callback data helpers ("scope:action:payload")
//   - Inline keyboard conversion for the telebot adapter
//   - Text/caption length limits
package tgui
