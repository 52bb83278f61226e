package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("ARTIFACT_TEST_HOST", "db.internal")

	assert.Equal(t, "db.internal", expandEnv("${ARTIFACT_TEST_HOST}"))
	assert.Equal(t, "db.internal", expandEnv("${ARTIFACT_TEST_HOST:fallback}"))
	assert.Equal(t, "fallback", expandEnv("${ARTIFACT_TEST_MISSING:fallback}"))
	assert.Equal(t, "", expandEnv("${ARTIFACT_TEST_MISSING:}"))

	// 未定义且无默认值的占位符原样保留
	assert.Equal(t, "${ARTIFACT_TEST_MISSING}", expandEnv("${ARTIFACT_TEST_MISSING}"))

	// 混合文本
	assert.Equal(t, "host=db.internal port=5432",
		expandEnv("host=${ARTIFACT_TEST_HOST} port=${ARTIFACT_TEST_PORT:5432}"))
}
