// Package entity 定义领域实体
package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ArtifactKind 构件类型
type ArtifactKind string

const (
	ArtifactKindText    ArtifactKind = "text"
	ArtifactKindSheet   ArtifactKind = "sheet"
	ArtifactKindCode    ArtifactKind = "code"
	ArtifactKindDiagram ArtifactKind = "diagram"
)

// ParseArtifactKind 解析构件类型字符串
func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch ArtifactKind(s) {
	case ArtifactKindText, ArtifactKindSheet, ArtifactKindCode, ArtifactKindDiagram:
		return ArtifactKind(s), nil
	default:
		return "", fmt.Errorf("invalid artifact kind: %s", s)
	}
}

// UpdateType 版本来源操作类型
type UpdateType string

const (
	UpdateTypeCreate UpdateType = "create"
	UpdateTypeUpdate UpdateType = "update"
	UpdateTypeFix    UpdateType = "fix"
	UpdateTypeInject UpdateType = "inject"
)

// VersionMetadata 版本来源元数据 (JSONB)
type VersionMetadata struct {
	Agent            string     `json:"agent,omitempty"`
	UpdateType       UpdateType `json:"update_type,omitempty"`
	Provider         string     `json:"provider,omitempty"`
	Model            string     `json:"model,omitempty"`
	Valid            *bool      `json:"valid,omitempty"`
	ValidationReason string     `json:"validation_reason,omitempty"`
	GeneratedAt      time.Time  `json:"generated_at,omitempty"`
}

// Value 实现 driver.Valuer 接口
func (m VersionMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner 接口
func (m *VersionMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = VersionMetadata{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported metadata type: %T", value)
	}
}

// ArtifactVersion 构件版本
// 逻辑构件只存在于它的版本集合中：artifact_id 在所有版本间共享，
// (artifact_id, version_no) 才是一次修订的真实身份。
type ArtifactVersion struct {
	RowID           string          `json:"-" gorm:"column:row_id;type:uuid;primaryKey;default:gen_random_uuid()"`
	ArtifactID      string          `json:"id" gorm:"type:uuid;not null;uniqueIndex:idx_artifact_versions_artifact_no,priority:1;index:idx_artifact_versions_artifact_created"`
	VersionNo       int             `json:"version_no" gorm:"not null;uniqueIndex:idx_artifact_versions_artifact_no,priority:2"`
	Title           string          `json:"title" gorm:"type:varchar(255);not null"`
	Kind            ArtifactKind    `json:"kind" gorm:"type:varchar(16);not null"`
	Content         string          `json:"content" gorm:"type:text;not null"`
	ParentVersionID *string         `json:"parent_version_id,omitempty" gorm:"type:uuid"`
	OwnerID         string          `json:"owner_id" gorm:"type:varchar(64);index"`
	ConversationID  string          `json:"conversation_id" gorm:"type:varchar(64);index"`
	Metadata        VersionMetadata `json:"metadata" gorm:"type:jsonb"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime;index:idx_artifact_versions_artifact_created"`
}

func (ArtifactVersion) TableName() string {
	return "artifact_versions"
}
