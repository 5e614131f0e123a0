package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidwatch/bidcard/internal/model"
)

const detailHTML = `<html>
<head>
<meta name="ArticleTitle" content="浙江警察学院机房改造项目中标公告" />
<meta name="PubDate" content="2026年08月20日" />
</head>
<body>
<div class="table">
<table>
<tr><td>采购单位</td><td>浙江警察学院</td></tr>
<tr><td>采购单位地址</td><td>杭州市滨江区</td></tr>
<tr><td>采购单位联系方式</td><td>张三 0571-88888888</td></tr>
<tr><td>代理机构名称</td><td>某某咨询有限公司</td></tr>
<tr><td>代理机构联系方式</td><td>黄丹彤16620120513、崔世杰15800204406</td></tr>
<tr><td>项目联系人</td><td>李四</td></tr>
</table>
</div>
<div class="vF_detail_content">
<p>项目编号：TC2026-0811</p>
<p>项目名称：机房改造项目</p>
<p>中标（成交）信息</p>
<p>供应商名称：某某建设集团有限公司</p>
<p>供应商地址：杭州市西湖区</p>
<p>中标金额：￥120.5万元</p>
<p>评审专家</p>
<p>王专家、赵评委、钱裁判</p>
<p>公告期限</p>
<p>自本公告发布之日起1个工作日</p>
</div>
</body>
</html>`

func TestParse_FullAnnouncement(t *testing.T) {
	page, err := Parse(detailHTML)
	require.NoError(t, err)
	d := page.Detail

	assert.Equal(t, "浙江警察学院机房改造项目中标公告", d.Title)
	assert.Equal(t, "2026-08-20", d.PublishDate)

	assert.Equal(t, "浙江警察学院", d.BuyerName)
	assert.Equal(t, "杭州市滨江区", d.BuyerAddress)
	assert.Equal(t, "某某咨询有限公司", d.AgentName)

	assert.Equal(t, "TC2026-0811", d.ProjectNo)
	assert.Equal(t, "机房改造项目", d.ProjectName)
	assert.Equal(t, "某某建设集团有限公司", d.SupplierName)
	assert.Equal(t, "杭州市西湖区", d.SupplierAddress)
	assert.Contains(t, d.BidAmount, "120.5")

	assert.Equal(t, []string{"王专家", "赵评委", "钱裁判"}, d.Experts)
	assert.Contains(t, d.Content, "项目编号")

	require.Len(t, page.ContactLines, 3)
	assert.Equal(t, model.RoleBuyer, page.ContactLines[0].Role)
	assert.Contains(t, page.ContactLines[0].Text, "张三")
	assert.Equal(t, model.RoleAgent, page.ContactLines[1].Role)
	assert.Equal(t, model.RoleContact, page.ContactLines[2].Role)
}

func TestParse_FallbackTitleAndDate(t *testing.T) {
	html := `<html><body>
<h2 class="tc"> 某项目成交公告 </h2>
<span id="pubTime">2026.08.19</span>
<div class="vF_detail_content"><p>正文内容</p></div>
</body></html>`

	page, err := Parse(html)
	require.NoError(t, err)
	assert.Equal(t, "某项目成交公告", page.Detail.Title)
	assert.Equal(t, "2026-08-19", page.Detail.PublishDate)
	assert.Equal(t, "正文内容", page.Detail.Content)
}

func TestParse_RejectsEmptyPage(t *testing.T) {
	_, err := Parse(`<html><body><div>访问过于频繁，请稍后再试</div></body></html>`)
	require.Error(t, err)
}

func TestParse_MentionsEndToEnd(t *testing.T) {
	page, err := Parse(detailHTML)
	require.NoError(t, err)

	mentions := NewExtractor(0).Mentions(page)
	require.NotEmpty(t, mentions)

	byName := map[string]model.ContactMention{}
	for _, m := range mentions {
		byName[m.Name] = m
	}
	assert.Equal(t, model.RoleBuyer, byName["张三"].Role)
	assert.Equal(t, []string{"0571-88888888"}, byName["张三"].Phones)
	assert.Equal(t, model.RoleAgent, byName["黄丹彤"].Role)
	assert.Equal(t, model.RoleAgent, byName["崔世杰"].Role)

	// Review experts never surface as contacts.
	_, hasExpert := byName["王专家"]
	assert.False(t, hasExpert)
}
