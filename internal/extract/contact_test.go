package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidwatch/bidcard/internal/model"
)

func pageWith(content string, experts ...string) *Page {
	return &Page{Detail: model.Detail{Content: content, Experts: experts}}
}

func TestMentions_ContactInheritsBuyerRole(t *testing.T) {
	page := pageWith("采购人：浙江警察学院 联系人：张三 电话：13812345678")

	mentions := NewExtractor(0).Mentions(page)

	require.Len(t, mentions, 1)
	m := mentions[0]
	assert.Equal(t, model.RoleBuyer, m.Role)
	assert.Equal(t, "张三", m.Name)
	assert.Equal(t, []string{"13812345678"}, m.Phones)
	assert.Empty(t, m.Emails)
}

func TestMentions_AgentAndBuyerSections(t *testing.T) {
	content := "采购人信息\n名称：浙江警察学院\n联系人：张三\n电话：0571-88888888\n" +
		"代理机构信息\n名称：某某咨询有限公司\n联系人：李四\n电话：13912345678\n邮箱：lisi@agency.cn"
	mentions := NewExtractor(0).Mentions(pageWith(content))

	require.Len(t, mentions, 2)
	assert.Equal(t, model.RoleBuyer, mentions[0].Role)
	assert.Equal(t, "张三", mentions[0].Name)
	assert.Equal(t, []string{"0571-88888888"}, mentions[0].Phones)

	assert.Equal(t, model.RoleAgent, mentions[1].Role)
	assert.Equal(t, "李四", mentions[1].Name)
	assert.Equal(t, []string{"13912345678"}, mentions[1].Phones)
	assert.Equal(t, []string{"lisi@agency.cn"}, mentions[1].Emails)
}

// A fact with no anchor within the lookback window becomes an
// unspecified-contact mention instead of being dropped.
func TestMentions_OutOfWindowFactBecomesLooseContact(t *testing.T) {
	content := "采购人：浙江警察学院\n" + strings.Repeat("填充文字", 80) + "\n13812345678"
	mentions := NewExtractor(120).Mentions(pageWith(content))

	require.Len(t, mentions, 1)
	assert.Equal(t, model.RoleContact, mentions[0].Role)
	assert.Equal(t, []string{"13812345678"}, mentions[0].Phones)
	assert.Empty(t, mentions[0].Name)
}

func TestMentions_UnanchoredPhoneIsKept(t *testing.T) {
	mentions := NewExtractor(0).Mentions(pageWith("如有疑问请拨 0571-88888888"))
	require.Len(t, mentions, 1)
	assert.Equal(t, model.RoleContact, mentions[0].Role)
}

func TestMentions_ExpertNamesFiltered(t *testing.T) {
	page := pageWith("联系人：王专家 电话：13812345678", "王专家", "赵评委")
	mentions := NewExtractor(0).Mentions(page)

	require.Len(t, mentions, 1)
	assert.Empty(t, mentions[0].Name, "expert name must not survive as a contact")
	assert.Equal(t, []string{"13812345678"}, mentions[0].Phones)
}

func TestMentions_TableLineMultiplePeople(t *testing.T) {
	page := &Page{ContactLines: []ContactLine{
		{Role: model.RoleAgent, Text: "黄丹彤16620120513、崔世杰15800204406"},
	}}
	mentions := NewExtractor(0).Mentions(page)

	require.Len(t, mentions, 2)
	assert.Equal(t, "黄丹彤", mentions[0].Name)
	assert.Equal(t, []string{"16620120513"}, mentions[0].Phones)
	assert.Equal(t, model.RoleAgent, mentions[0].Role)
	assert.Equal(t, "崔世杰", mentions[1].Name)
	assert.Equal(t, []string{"15800204406"}, mentions[1].Phones)
}

func TestMentions_DuplicateFactsCollapse(t *testing.T) {
	page := &Page{
		Detail: model.Detail{Content: "联系人：张三 电话：13812345678"},
		ContactLines: []ContactLine{
			{Role: model.RoleContact, Text: "张三 13812345678"},
		},
	}
	mentions := NewExtractor(0).Mentions(page)
	require.Len(t, mentions, 1)
}

func TestMentions_LabelIsNotAName(t *testing.T) {
	page := &Page{ContactLines: []ContactLine{
		{Role: model.RoleBuyer, Text: "联系电话0571-88888888"},
	}}
	mentions := NewExtractor(0).Mentions(page)

	require.Len(t, mentions, 1)
	assert.Empty(t, mentions[0].Name)
	assert.Equal(t, []string{"0571-88888888"}, mentions[0].Phones)
}

func TestMentions_EmptyPage(t *testing.T) {
	assert.Empty(t, NewExtractor(0).Mentions(pageWith("")))
	assert.Empty(t, NewExtractor(0).Mentions(pageWith("没有任何联系信息的公告正文")))
}
