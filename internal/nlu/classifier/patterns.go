package classifier

import (
	"regexp"

	"shop-assistant/internal/models"
)

// DefaultDefinitions returns the built-in intent table. Deny precedes confirm
// and carries a higher weight so negative answers containing "对" ("不对")
// never resolve to confirm.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Intent: models.IntentDeny,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`不对|不是|不行|不要|错了|算了|取消|重新来|重来`),
			},
			Keywords: []string{"不对", "不要", "不行", "取消", "错"},
			Weight:   1.0,
		},
		{
			Intent: models.IntentConfirm,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`^(对|好的|好|行|可以|没问题|没错|嗯|是的|确认|就这样|成交)$`),
				regexp.MustCompile(`^(对的|好嘞|要得|中)`),
			},
			Keywords: []string{"对", "好", "行", "可以", "确认"},
			Weight:   0.8,
		},
		{
			Intent: models.IntentPriceCorrection,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(按|改成|改为|算)\d+(\.\d+)?(块|元|毛)`),
				regexp.MustCompile(`\d+(\.\d+)?(块|元)(钱)?(算|卖|好了|吧)`),
				regexp.MustCompile(`(便宜|贵)(点|一点)`),
			},
			Keywords: []string{"按", "改成", "算", "便宜点"},
			Weight:   0.9,
		},
		{
			Intent: models.IntentPurchasePriceCheck,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(进价|成本|进货价|批发价|拿货价)`),
			},
			Keywords: []string{"进价", "成本", "进货", "批发"},
			Weight:   0.9,
		},
		{
			Intent: models.IntentSingleItemQuery,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`多少钱一(瓶|包|箱|斤|个|盒|条|袋|件|听|桶|提)`),
				regexp.MustCompile(`(单价|一个多少|一瓶多少|一包多少)`),
			},
			Keywords: []string{"单价", "一瓶", "一个"},
			Weight:   0.95,
		},
		{
			Intent: models.IntentRetailQuote,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(多少钱|怎么卖|什么价|啥价|卖多少|报个价|算一下|一共)`),
				regexp.MustCompile(`(要|拿|来|买)\S*(瓶|包|箱|斤|个|盒|条|袋|件|听|桶|提)`),
			},
			Keywords: []string{"多少钱", "买", "要", "价格"},
			Weight:   0.7,
		},
	}
}
