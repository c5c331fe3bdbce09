package stage

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModePhrases holds phrases that differ between casual and standard mode.
type ModePhrases struct {
	Casual   []string `yaml:"casual"`
	Standard []string `yaml:"standard"`
}

func (p ModePhrases) For(mode Mode) []string {
	if mode == ModeStandard {
		return p.Standard
	}
	return p.Casual
}

// NodeKeywords are matched against node titles and types, in field order.
type NodeKeywords struct {
	Preliminary []string `yaml:"preliminary"`
	Deep        []string `yaml:"deep"`
	Check       []string `yaml:"check"`
	Review      []string `yaml:"review"`
	Result      []string `yaml:"result"`
}

// Keywords is the full vocabulary the classifier matches against. All
// entries are compared against lower-cased input.
type Keywords struct {
	Result      ModePhrases  `yaml:"result"`
	Review      []string     `yaml:"review"`
	Check       []string     `yaml:"check"`
	Deep        []string     `yaml:"deep"`
	Preliminary []string     `yaml:"preliminary"`
	Node        NodeKeywords `yaml:"node"`
}

func DefaultKeywords() Keywords {
	return Keywords{
		Result: ModePhrases{
			Casual:   []string{"选购方案", "推荐方案", "最终推荐", "建议选择", "购买建议", "综合推荐", "采购建议"},
			Standard: []string{"供应商推荐", "推荐供应商", "最终供应商", "建议供应商", "优选供应商", "供应商清单"},
		},
		Review:      []string{"校对", "修正", "优化", "调整", "改进", "复核", "修订", "完善"},
		Check:       []string{"检查", "审查", "验证", "评估", "核实", "审核", "确认"},
		Deep:        []string{"深度", "详细", "进一步", "深入", "全面", "完整", "详尽"},
		Preliminary: []string{"初步", "概要", "需求", "开始", "了解", "基本", "大致"},
		Node: NodeKeywords{
			Preliminary: []string{"初步", "preliminary", "需求", "分析"},
			Deep:        []string{"深度", "deep", "搜索", "search", "寻源", "sourcing", "调研"},
			Check:       []string{"检查", "校验", "验证", "check", "审查", "评估"},
			Review:      []string{"校对", "修正", "修改", "复核", "revise", "correction"},
			Result:      []string{"推荐", "方案", "结果", "输出", "report", "结论"},
		},
	}
}

// ParseKeywords reads a YAML keyword file. Families the file leaves out keep
// their default lists.
func ParseKeywords(b []byte) (Keywords, error) {
	var override Keywords
	if err := yaml.Unmarshal(b, &override); err != nil {
		return Keywords{}, fmt.Errorf("failed to parse keywords: %w", err)
	}
	kw := DefaultKeywords()
	pick(&kw.Result.Casual, override.Result.Casual)
	pick(&kw.Result.Standard, override.Result.Standard)
	pick(&kw.Review, override.Review)
	pick(&kw.Check, override.Check)
	pick(&kw.Deep, override.Deep)
	pick(&kw.Preliminary, override.Preliminary)
	pick(&kw.Node.Preliminary, override.Node.Preliminary)
	pick(&kw.Node.Deep, override.Node.Deep)
	pick(&kw.Node.Check, override.Node.Check)
	pick(&kw.Node.Review, override.Node.Review)
	pick(&kw.Node.Result, override.Node.Result)
	return kw.normalized(), nil
}

func LoadKeywordsFile(path string) (Keywords, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Keywords{}, fmt.Errorf("failed to read keywords file: %w", err)
	}
	return ParseKeywords(b)
}

func pick(dst *[]string, override []string) {
	if len(override) > 0 {
		*dst = override
	}
}

func (k Keywords) normalized() Keywords {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return Keywords{
		Result:      ModePhrases{Casual: lower(k.Result.Casual), Standard: lower(k.Result.Standard)},
		Review:      lower(k.Review),
		Check:       lower(k.Check),
		Deep:        lower(k.Deep),
		Preliminary: lower(k.Preliminary),
		Node: NodeKeywords{
			Preliminary: lower(k.Node.Preliminary),
			Deep:        lower(k.Node.Deep),
			Check:       lower(k.Node.Check),
			Review:      lower(k.Node.Review),
			Result:      lower(k.Node.Result),
		},
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
