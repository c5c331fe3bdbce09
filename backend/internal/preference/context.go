package preference

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var categoryNames = map[Category]string{
	CategorySoftwareDevelopment: "软件开发",
	CategoryHardwareProcurement: "硬件采购",
	CategoryConsultingService:   "咨询服务",
	CategorySystemIntegration:   "系统集成",
	CategoryGeneralProcurement:  "通用采购",
}

var priorityTexts = map[QualityPriorityType]string{
	QualityPriorityQuality:  "质量优先（推荐优质产品/服务）",
	QualityPriorityPrice:    "价格优先（推荐高性价比方案）",
	QualityPriorityBalanced: "均衡推荐（综合考虑质量与价格）",
}

var replyStyleNames = map[ReplyStyle]string{
	ReplyStyleConcise:      "简洁直接",
	ReplyStyleDetailed:     "详细分析",
	ReplyStyleProfessional: "专业严谨",
}

var voiceNames = map[Voice]string{
	VoiceXiaomei:   "小美（贴心购物助手）",
	VoiceXiaoshuai: "小帅（专业寻源专家）",
}

// amounts formats budgets with thousands separators.
var amounts = message.NewPrinter(language.English)

// BuildSystemContext renders the preference as a prompt section for the
// engine. It returns "" for a nil preference.
func BuildSystemContext(p *Preference) string {
	if p == nil {
		return ""
	}
	var b strings.Builder

	proc := p.Procurement
	if proc.DefaultCategory != "" || proc.QualityPriority.Type != "" || proc.PaymentTerms != "" || proc.DeliveryLocation != "" {
		b.WriteString("\n【用户采购偏好】\n")
		if proc.DefaultCategory != "" {
			fmt.Fprintf(&b, "- 默认品类：%s\n", orDefault(categoryNames[proc.DefaultCategory], string(proc.DefaultCategory)))
		}
		if proc.QualityPriority.Type != "" {
			fmt.Fprintf(&b, "- 采购策略：%s\n", orDefault(priorityTexts[proc.QualityPriority.Type], string(proc.QualityPriority.Type)))
		}
		if proc.PaymentTerms != "" {
			fmt.Fprintf(&b, "- 偏好付款方式：%s\n", proc.PaymentTerms)
		}
		if proc.DeliveryLocation != "" {
			fmt.Fprintf(&b, "- 收货地点：%s\n", proc.DeliveryLocation)
		}
	}

	b.WriteString("\n【对话风格偏好】\n")
	fmt.Fprintf(&b, "- 回复风格：%s\n", orDefault(replyStyleNames[p.Chat.ReplyStyle], "专业严谨"))
	fmt.Fprintf(&b, "- 语言：%s\n", orDefault(p.Chat.Language, "简体中文"))
	fmt.Fprintf(&b, "- AI人设：%s\n", orDefault(voiceNames[p.Chat.Voice], "小帅"))

	return b.String()
}

// EnhanceQuery appends preference hints the query does not already cover.
func EnhanceQuery(query string, p *Preference) string {
	if p == nil || query == "" {
		return query
	}
	proc := p.Procurement
	var b strings.Builder
	b.WriteString(query)

	if proc.DeliveryLocation != "" && !containsAny(query, "收货", "地址", "配送", "送到") {
		fmt.Fprintf(&b, "\n（补充信息：收货地址 - %s）", proc.DeliveryLocation)
	}
	if proc.PreferredPriceRange.Bounded() && !containsAny(query, "预算", "价格", "多少钱", "费用") {
		b.WriteString(amounts.Sprintf("\n（预算参考：%d - %d 元）", proc.PreferredPriceRange.Min, proc.PreferredPriceRange.Max))
	}
	if proc.PaymentTerms != "" && !containsAny(query, "付款", "结算", "支付") {
		fmt.Fprintf(&b, "\n（偏好付款方式：%s）", proc.PaymentTerms)
	}
	return b.String()
}

// BuildInputs returns the engine input variables derived from p.
func BuildInputs(p *Preference) map[string]any {
	inputs := map[string]any{}
	if p == nil {
		return inputs
	}
	setIf := func(key, value string) {
		if value != "" {
			inputs[key] = value
		}
	}
	setIf("user_default_category", string(p.Procurement.DefaultCategory))
	setIf("user_quality_priority", string(p.Procurement.QualityPriority.Type))
	setIf("user_payment_terms", p.Procurement.PaymentTerms)
	setIf("user_reply_style", string(p.Chat.ReplyStyle))
	setIf("user_voice", string(p.Chat.Voice))
	return inputs
}

var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategorySoftwareDevelopment, []string{"软件", "开发", "系统", "平台", "app", "应用"}},
	{CategoryHardwareProcurement, []string{"硬件", "设备", "服务器", "电脑", "采购", "机器"}},
	{CategoryConsultingService, []string{"咨询", "顾问", "培训", "服务"}},
	{CategorySystemIntegration, []string{"集成", "对接", "接口", "系统对接"}},
	{CategoryGeneralProcurement, []string{"采购", "买", "订购"}},
}

// ExtractCategory returns the category mentioned by the most recent message
// that mentions one, or "" when none does.
func ExtractCategory(messages []string) Category {
	for i := len(messages) - 1; i >= 0; i-- {
		content := strings.ToLower(messages[i])
		for _, c := range categoryKeywords {
			if containsAny(content, c.keywords...) {
				return c.category
			}
		}
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
