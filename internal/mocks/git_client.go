package mocks

import (
	"context"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/stretchr/testify/mock"
)

// MockGitClient mocks the git.Client interface
type MockGitClient struct {
	mock.Mock
}

// Run mocks a git invocation
func (m *MockGitClient) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	ret := m.Called(ctx, dir, args)
	var out []byte
	if ret.Get(0) != nil {
		out = ret.Get(0).([]byte)
	}
	return out, ret.Error(1)
}

// PlainOpen mocks opening a working tree
func (m *MockGitClient) PlainOpen(path string) (*git.Repository, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*git.Repository), args.Error(1)
}

// ListRemote mocks listing remote references
func (m *MockGitClient) ListRemote(ctx context.Context, url string, auth transport.AuthMethod) ([]*plumbing.Reference, error) {
	args := m.Called(ctx, url, auth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*plumbing.Reference), args.Error(1)
}
