package store

import (
	"context"
	"errors"
	"net"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	MinUsernameLen = 3
	MaxUsernameLen = 32
	MinPasswordLen = 4
	MaxPasswordLen = 72 // bcrypt 上限
)

// Result 认证类操作的结构化结果，失败不以 error 形式抛给调用方
type Result struct {
	Success   bool
	Message   string
	AccountID uint
	Username  string
}

func fail(msg string) Result { return Result{Success: false, Message: msg} }

// ValidateCredentials 在调用任何协作方之前做格式校验
func ValidateCredentials(username, password string) (string, bool) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "Username and password are required", false
	}
	if len(username) < MinUsernameLen || len(username) > MaxUsernameLen {
		return "Username must be between 3 and 32 characters", false
	}
	if len(password) < MinPasswordLen || len(password) > MaxPasswordLen {
		return "Password must be between 4 and 72 characters", false
	}
	return "", true
}

// IsLoopback 127.0.0.0/8、::1 以及映射的回环地址
func IsLoopback(address string) bool {
	ip := net.ParseIP(address)
	return ip != nil && ip.IsLoopback()
}

// Register 创建账号；每个公网地址最多注册一个账号（回环地址除外）
func (s *Store) Register(ctx context.Context, username, password, address string) Result {
	if msg, ok := ValidateCredentials(username, password); !ok {
		return fail(msg)
	}
	username = strings.TrimSpace(username)
	db := s.DB.WithContext(ctx)

	var count int64
	if err := db.Model(&Account{}).Where("username = ?", username).Count(&count).Error; err != nil {
		s.log.Errorf("register: lookup username %q: %v", username, err)
		return fail(ErrGeneric)
	}
	if count > 0 {
		return fail("Username already taken")
	}

	if !IsLoopback(address) {
		if err := db.Model(&Account{}).Where("register_address = ?", address).Count(&count).Error; err != nil {
			s.log.Errorf("register: lookup address %s: %v", address, err)
			return fail(ErrGeneric)
		}
		if count > 0 {
			return fail("An account has already been registered from this address")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.log.Errorf("register: hash password: %v", err)
		return fail(ErrGeneric)
	}
	acc := Account{Username: username, PasswordHash: string(hash), RegisterAddress: address}
	if err := db.Create(&acc).Error; err != nil {
		s.log.Errorf("register: create account %q: %v", username, err)
		return fail(ErrGeneric)
	}
	s.log.Infof("account registered: id=%d username=%s", acc.ID, acc.Username)
	return Result{Success: true, Message: "Registration successful", AccountID: acc.ID, Username: acc.Username}
}

// Login 校验用户名与密码
func (s *Store) Login(ctx context.Context, username, password string) Result {
	if msg, ok := ValidateCredentials(username, password); !ok {
		return fail(msg)
	}
	acc, err := s.findAccount(ctx, strings.TrimSpace(username))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail("Invalid username or password")
	}
	if err != nil {
		s.log.Errorf("login: lookup %q: %v", username, err)
		return fail(ErrGeneric)
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return fail("Invalid username or password")
	}
	return Result{Success: true, Message: "Login successful", AccountID: acc.ID, Username: acc.Username}
}

// Lookup 按用户名查找账号（恢复会话使用，不校验口令）
func (s *Store) Lookup(ctx context.Context, username string) Result {
	username = strings.TrimSpace(username)
	if username == "" {
		return fail("Username is required")
	}
	acc, err := s.findAccount(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail("Unknown account")
	}
	if err != nil {
		s.log.Errorf("lookup %q: %v", username, err)
		return fail(ErrGeneric)
	}
	return Result{Success: true, AccountID: acc.ID, Username: acc.Username}
}

func (s *Store) findAccount(ctx context.Context, username string) (*Account, error) {
	var acc Account
	if err := s.DB.WithContext(ctx).Where("username = ?", username).First(&acc).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}
