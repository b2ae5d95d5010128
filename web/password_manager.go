package web

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashAPIKey 生成 API Key 的 bcrypt 哈希，写入配置 web.api_key_hash
func HashAPIKey(key string) (string, error) {
	if len(key) < 8 {
		return "", fmt.Errorf("api key 长度至少 8 位")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("生成哈希失败: %w", err)
	}
	return string(hash), nil
}

// VerifyAPIKey 校验 API Key
func VerifyAPIKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
