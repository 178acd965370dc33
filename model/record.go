package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// SegmentList 自定义类型用于 GORM JSON 字段的自动扫描
type SegmentList []Segment

// Scan 实现 sql.Scanner 接口
func (s *SegmentList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*s = nil
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*s = nil
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Value 实现 driver.Valuer 接口
func (s SegmentList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// PresentationRecord 演示文稿清单（持久化）
// 引擎本身不落库；记录由清单库/API 写入，播放时转换为 Presentation 交给引擎
type PresentationRecord struct {
	ID             int64       `json:"id" gorm:"primaryKey;autoIncrement"`
	Title          string      `json:"title" gorm:"size:200;not null"`
	ShareSlug      string      `json:"shareSlug" gorm:"size:64;uniqueIndex;not null"` // 分享链接标识
	SingleMediaURL string      `json:"singleMediaUrl,omitempty" gorm:"size:1024"`
	Segments       SegmentList `json:"segments,omitempty" gorm:"type:json"`
	PasscodeHash   string      `json:"-" gorm:"size:100"` // bcrypt，可为空表示无口令
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// TableName 指定表名
func (PresentationRecord) TableName() string {
	return "presentations"
}

// ToPresentation 转换为引擎输入
// 返回深拷贝：调用方可能就地改写 URL（如预签名替换），不能污染记录本身
func (r *PresentationRecord) ToPresentation() *Presentation {
	p := &Presentation{SingleMediaURL: r.SingleMediaURL}
	if len(r.Segments) > 0 {
		p.Segments = make([]Segment, len(r.Segments))
		for i, seg := range r.Segments {
			if len(seg.ImageURLs) > 0 {
				seg.ImageURLs = append([]string(nil), seg.ImageURLs...)
			}
			p.Segments[i] = seg
		}
	}
	return p
}

// HasPasscode 是否设置了访问口令
func (r *PresentationRecord) HasPasscode() bool {
	return r.PasscodeHash != ""
}
