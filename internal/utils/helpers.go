package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

// ReadTargetsFromFile 从文件中读取爬取目标
// 每行一个: "post <postId> <xsecToken>"、"user <userIdOrUrl>" 或笔记/主页链接;
// 空行与 # 开头的行被忽略,无效行记录警告后跳过
func ReadTargetsFromFile(filepath string) ([]models.Target, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("打开目标文件失败: %w", err)
	}
	defer file.Close()

	targets := make([]models.Target, 0)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		target, err := ParseTargetLine(line)
		if err != nil {
			Warnf("跳过无效目标 (行 %d): %s - %v", lineNum, line, err)
			continue
		}
		targets = append(targets, target)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取目标文件失败: %w", err)
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("目标文件中没有有效的目标")
	}

	Infof("从文件加载了 %d 个目标", len(targets))
	return targets, nil
}

// ParseTargetLine 解析单行目标
func ParseTargetLine(line string) (models.Target, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return models.Target{}, fmt.Errorf("%w: 空行", models.ErrTargetIdentifierInvalid)
	}

	var target models.Target
	switch strings.ToLower(fields[0]) {
	case "post":
		if len(fields) != 3 {
			return models.Target{}, fmt.Errorf("%w: 格式应为 'post <postId> <xsecToken>'", models.ErrTargetIdentifierInvalid)
		}
		target = models.PostTarget(fields[1], fields[2])
	case "user":
		if len(fields) != 2 {
			return models.Target{}, fmt.Errorf("%w: 格式应为 'user <userIdOrUrl>'", models.ErrTargetIdentifierInvalid)
		}
		target = models.UserTarget(fields[1])
	default:
		if len(fields) != 1 {
			return models.Target{}, fmt.Errorf("%w: 未知的目标类型 %q", models.ErrTargetIdentifierInvalid, fields[0])
		}
		t, err := TargetFromURL(fields[0])
		if err != nil {
			return models.Target{}, err
		}
		target = t
	}

	if err := target.Validate(); err != nil {
		return models.Target{}, err
	}
	return target, nil
}

// TargetFromURL 由笔记链接 (/explore/{id}?xsec_token=) 或主页链接构造目标
func TargetFromURL(raw string) (models.Target, error) {
	if models.ClassifyUserRef(raw) != models.UserRefInvalid {
		return models.UserTarget(raw), nil
	}
	u, err := models.ParseSiteURL(raw)
	if err != nil {
		return models.Target{}, fmt.Errorf("%w: %v", models.ErrTargetIdentifierInvalid, err)
	}
	path := strings.Trim(u.Path, "/")
	for _, prefix := range []string{"explore/", "discovery/item/"} {
		if id, ok := strings.CutPrefix(path, prefix); ok && id != "" && !strings.Contains(id, "/") {
			return models.PostTarget(id, u.Query().Get("xsec_token")), nil
		}
	}
	return models.Target{}, fmt.Errorf("%w: 无法识别的链接 %s", models.ErrTargetIdentifierInvalid, raw)
}
