package referralLink

import (
	"fmt"
	"html"
	"strings"

	"foxgem/common"
)

// ExtractReferralCode извлекает реферальный код из команды /start.
// Поддерживаются "/start ref_AB12CD" и "/start AB12CD".
func ExtractReferralCode(text string) string {
	parts := strings.Fields(text)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "/start") {
		return ""
	}

	code := common.NormalizeReferralCode(parts[1])
	if !common.IsValidReferralCode(code) {
		return ""
	}
	return code
}

// FormatReferralMenu формирует текст реферального меню (HTML)
func (rs *ReferralService) FormatReferralMenu(info *common.ReferralLinkInfo) string {
	text := "🎯 <b>Реферальная система</b>\n\n"
	text += fmt.Sprintf("💎 <b>Бонус за приглашение:</b> +%d очков\n", rs.opts.Reward)
	text += fmt.Sprintf("⏳ Бонус действует %d дн., затем обнуляется\n\n", int(rs.opts.Window.Hours()/24))

	text += "📊 <b>Ваша статистика:</b>\n"
	text += fmt.Sprintf("👥 Приглашено друзей: %d\n", info.ReferralCount)
	text += fmt.Sprintf("💰 Текущий бонус: +%d\n\n", info.ReferralBonus)

	text += "🔗 <b>Ваша реферальная ссылка:</b>\n"
	text += "<code>" + html.EscapeString(info.ReferralLink) + "</code>\n\n"

	text += "📱 <b>Как пригласить друга:</b>\n"
	text += "1️⃣ Отправьте ссылку другу\n"
	text += "2️⃣ Друг открывает игру по ссылке\n"
	text += "3️⃣ Бонус добавляется к вашему результату в таблице лидеров"
	return text
}
