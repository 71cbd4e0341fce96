package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"modbot/internal/moderation"
)

const (
	replyStart = "Привет! Отправь сообщение, фото или видео - я передам его на модерацию.\n" +
		"Используй /anon <текст>, если хочешь опубликовать анонимно."
	replyQueued       = "Отправлено на модерацию. После одобрения сообщение появится в канале."
	replyEmpty        = "Пустые сообщения не отправляются."
	replyAnonUsage    = "После /anon укажи текст сообщения."
	replyMissingMedia = "Не удалось получить файл. Попробуйте отправить его еще раз."
	replyPersist      = "Не удалось сохранить изменения. Попробуйте позже."

	replyForbiddenAlert = "Недостаточно прав"
	replyForbidden      = "Недостаточно прав."
	replyHandled        = "Заявка уже обработана"
	replyBadAction      = "Неизвестное действие"

	replyNotMainAdmin   = "Команда доступна только главному администратору."
	replyBadID          = "id должен быть числом."
	replyRemoveMain     = "Нельзя удалить главного администратора."
	replyUnknownCommand = "Неизвестная команда. Список команд: /help"
	replyBusy           = "Бот перегружен, попробуйте позже."
)

func replyCooldown(wait int64) string {
	return fmt.Sprintf("Можно отправлять одно сообщение в минуту. Подождите еще %d сек.", wait)
}

func replyUsage(cmd string) string { return "Использование: /" + cmd + " <id>" }

func replyAdminAdded(id int64) string {
	return fmt.Sprintf("Администратор %d добавлен.", id)
}
func replyAdminRemoved(id int64) string {
	return fmt.Sprintf("Администратор %d удален.", id)
}

func replyAdmins(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return "Текущие администраторы: " + strings.Join(parts, ", ")
}

func replyPending(n int) string { return fmt.Sprintf("Заявок в очереди: %d", n) }

// replyFor maps a service error to the text shown to the user.
func replyFor(err error) string {
	var cd *moderation.CooldownError
	var pe *moderation.PersistError
	switch {
	case errors.As(err, &cd):
		return replyCooldown(cd.RetryAfter)
	case errors.As(err, &pe):
		return replyPersist
	case errors.Is(err, moderation.ErrEmptyText):
		return replyEmpty
	case errors.Is(err, moderation.ErrMissingMedia):
		return replyMissingMedia
	case errors.Is(err, moderation.ErrBadAdminID):
		return replyBadID
	case errors.Is(err, moderation.ErrNotMainAdmin):
		return replyNotMainAdmin
	case errors.Is(err, moderation.ErrRemoveMainAdmin):
		return replyRemoveMain
	case errors.Is(err, moderation.ErrForbidden):
		return replyForbiddenAlert
	case errors.Is(err, moderation.ErrAlreadyHandled):
		return replyHandled
	case errors.Is(err, moderation.ErrBadAction):
		return replyBadAction
	}
	return replyPersist
}
