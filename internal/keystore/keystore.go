// Package keystore は暗号化されたファイルベースのキーバリューストアを提供する。
// セッションIDや再認証用の資格情報など、端末に残す秘密情報の保存に使用する。
package keystore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

// 保存キー
const (
	// KeySessionID は復元対象のセッションID。
	KeySessionID = "sessionID"
	// KeyUserEmail は再認証用にキャッシュしたメールアドレス。
	KeyUserEmail = "userEmail"
	// KeyUserPassword は再認証用にキャッシュしたパスワード。
	KeyUserPassword = "userPassword"
	// KeyOnboardingSeen はオンボーディング完了フラグ。
	KeyOnboardingSeen = "onboardingSeen"
	// KeySecureLoginMethod は生体認証で使うログイン方式。
	KeySecureLoginMethod = "secureLoginMethod"
)

const (
	keySize   = 32
	nonceSize = 24
)

// Store は暗号化ファイルに裏付けられたキーバリューストア。
// ファイル全体をsecretboxで暗号化し、0600で保存する。
type Store struct {
	path string
	key  [keySize]byte

	mu     sync.Mutex
	values map[string]string
}

// Open は指定パスのストアを開く。ファイルが存在しない場合は空のストアを返す。
// 暗号鍵はパスフレーズからHKDF-SHA256で導出する。
func Open(path, passphrase string) (*Store, error) {
	if passphrase == "" {
		return nil, errors.New("keystore passphrase is required")
	}

	s := &Store{
		path:   path,
		values: make(map[string]string),
	}

	// 1. パスフレーズから暗号鍵を導出
	h := hkdf.New(sha256.New, []byte(passphrase), nil, []byte("mrlater-keystore"))
	if _, err := io.ReadFull(h, s.key[:]); err != nil {
		return nil, fmt.Errorf("failed to derive keystore key: %w", err)
	}

	// 2. 既存ファイルがあれば復号して読み込む
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore file: %w", err)
	}
	if err := s.decode(data); err != nil {
		return nil, err
	}

	return s, nil
}

// Get は指定キーの値を返す。存在しない場合は空文字列とfalseを返す。
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

// Set は値を保存し、ファイルへ書き出す。
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.flush()
}

// Delete は指定キーを削除し、ファイルへ書き出す。
// 存在しないキーの削除は成功として扱う。
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flush()
}

// flush は現在の内容を暗号化してファイルへ書き出す。呼び出し側でロックを取ること。
func (s *Store) flush() error {
	plaintext, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("failed to marshal keystore values: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	// nonceを先頭に付けて保存する
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &s.key)

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create keystore directory: %w", err)
	}
	if err := os.WriteFile(s.path, sealed, 0600); err != nil {
		return fmt.Errorf("failed to write keystore file: %w", err)
	}
	return nil
}

// decode は暗号化されたファイル内容を復号してvaluesへ読み込む。
func (s *Store) decode(data []byte) error {
	if len(data) < nonceSize {
		return errors.New("keystore file is corrupted: too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])

	plaintext, ok := secretbox.Open(nil, data[nonceSize:], &nonce, &s.key)
	if !ok {
		return errors.New("failed to decrypt keystore: wrong passphrase or corrupted file")
	}

	if err := json.Unmarshal(plaintext, &s.values); err != nil {
		return fmt.Errorf("failed to parse keystore contents: %w", err)
	}
	return nil
}
