package parser

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

// 旧版页面的计数标记 (data-count 属性)
var (
	postCountSelectors = map[string]string{
		"like":    ".like-count",
		"collect": ".collect-count",
		"comment": ".comment-count",
		"share":   ".share-count",
	}
	userCountSelectors = map[string]string{
		"fans":   ".fans-count",
		"follow": ".follow-count",
		"liked":  ".liked-count",
		"note":   ".note-count",
	}
)

// postFromMarkup 按旧版标记提取笔记; 未找到任何标记时返回 false
func postFromMarkup(doc *goquery.Document, postID string) (*models.PostDetail, bool) {
	counts, found := readCounts(doc, postCountSelectors)
	title := cleanTitle(doc.Find("title").First().Text())
	if !found && title == "" {
		return nil, false
	}
	return &models.PostDetail{
		PostID:       postID,
		Title:        title,
		LikeCount:    counts["like"],
		CollectCount: counts["collect"],
		CommentCount: counts["comment"],
		ShareCount:   counts["share"],
		CrawlTime:    time.Now(),
	}, true
}

func userFromMarkup(doc *goquery.Document) (*models.UserInfo, bool) {
	counts, found := readCounts(doc, userCountSelectors)
	nickname := strings.TrimSpace(doc.Find(".user-name").First().Text())
	location := strings.TrimSpace(doc.Find(".user-IP").First().Text())

	tags := []string{}
	doc.Find(".tag-item").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := strings.TrimSpace(s.Text()); t != "" {
			tags = append(tags, t)
		}
		return len(tags) < models.MaxUserTags
	})

	if !found && nickname == "" && len(tags) == 0 {
		return nil, false
	}
	return &models.UserInfo{
		Nickname:         nickname,
		IPLocation:       location,
		FansCount:        counts["fans"],
		FollowCount:      counts["follow"],
		LikeCollectCount: counts["liked"],
		NoteCount:        counts["note"],
		Tags:             tags,
		CrawlTime:        time.Now(),
	}, true
}

func readCounts(doc *goquery.Document, selectors map[string]string) (map[string]int64, bool) {
	counts := make(map[string]int64, len(selectors))
	found := false
	for key, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		found = true
		if v, ok := node.Attr("data-count"); ok {
			counts[key] = ExtractNumber(v)
		} else {
			counts[key] = ExtractNumber(strings.TrimSpace(node.Text()))
		}
	}
	return counts, found
}
