// Package service presents each loaded plugin as a uniform platform
// service. Capabilities a plugin does not implement resolve to empty
// results, so callers never branch on which methods exist.
package service

import (
	"context"
	"log"

	"github.com/infogata/socialgata/internal/plugin"
	"github.com/infogata/socialgata/internal/plugin/channel"
	"github.com/infogata/socialgata/internal/plugintypes"
)

// Service is the platform surface an application consumes.
type Service interface {
	PluginID() string
	PlatformType() plugintypes.PlatformType

	GetInstances(ctx context.Context, req *plugintypes.GetInstancesRequest) (*plugintypes.GetInstancesResponse, error)
	GetFeed(ctx context.Context, req *plugintypes.GetFeedRequest) (*plugintypes.GetFeedResponse, error)
	GetCommunity(ctx context.Context, req *plugintypes.GetCommunityRequest) (*plugintypes.GetCommunityResponse, error)
	GetCommunities(ctx context.Context, req *plugintypes.GetCommunitiesRequest) (*plugintypes.GetCommunitiesResponse, error)
	GetComments(ctx context.Context, req *plugintypes.GetCommentsRequest) (*plugintypes.GetCommentsResponse, error)
	GetCommentReplies(ctx context.Context, req *plugintypes.GetCommentRepliesRequest) (*plugintypes.GetCommentRepliesResponse, error)
	GetUser(ctx context.Context, req *plugintypes.GetUserRequest) (*plugintypes.GetUserResponse, error)
	Search(ctx context.Context, req *plugintypes.SearchRequest) (*plugintypes.SearchResponse, error)
	GetTrendingTopics(ctx context.Context, req *plugintypes.GetTrendingTopicsRequest) (*plugintypes.GetTrendingTopicsResponse, error)
	GetTrendingTopicFeed(ctx context.Context, req *plugintypes.GetTrendingTopicFeedRequest) (*plugintypes.GetTrendingTopicFeedResponse, error)

	Login(ctx context.Context, req *plugintypes.LoginRequest) error
	Logout(ctx context.Context) error
	IsLoggedIn(ctx context.Context) (bool, error)
}

// Adapter implements Service over one plugin host.
type Adapter struct {
	host *plugin.Host
}

// NewAdapter wraps a host. The host may be in any state; calls against an
// unloaded host produce empty results.
func NewAdapter(host *plugin.Host) *Adapter {
	return &Adapter{host: host}
}

func (a *Adapter) PluginID() string { return a.host.ID() }

func (a *Adapter) PlatformType() plugintypes.PlatformType { return a.host.PlatformType() }

// channel returns the live channel, or nil when the plugin is not ready.
func (a *Adapter) channel() *channel.Channel {
	if a.host.State() != plugin.StateReady {
		return nil
	}
	return a.host.Channel()
}

// invoke dispatches one capability call. Missing capabilities and failed
// calls both leave out untouched, so out keeps its empty shape.
func (a *Adapter) invoke(ctx context.Context, method string, req, out any) {
	ch := a.channel()
	if ch == nil {
		return
	}
	defined, err := ch.HasDefined(ctx, method)
	if err != nil || !defined {
		return
	}
	if err := ch.Invoke(ctx, method, req, out); err != nil {
		log.Printf("plugin %s: %s: %v", a.host.ID(), method, err)
	}
}

func (a *Adapter) GetInstances(ctx context.Context, req *plugintypes.GetInstancesRequest) (*plugintypes.GetInstancesResponse, error) {
	out := &plugintypes.GetInstancesResponse{Instances: []plugintypes.Instance{}}
	a.invoke(ctx, plugin.MethodGetInstances, req, out)
	return out, nil
}

func (a *Adapter) GetFeed(ctx context.Context, req *plugintypes.GetFeedRequest) (*plugintypes.GetFeedResponse, error) {
	out := &plugintypes.GetFeedResponse{Items: []plugintypes.Post{}}
	a.invoke(ctx, plugin.MethodGetFeed, req, out)
	return out, nil
}

func (a *Adapter) GetCommunity(ctx context.Context, req *plugintypes.GetCommunityRequest) (*plugintypes.GetCommunityResponse, error) {
	out := &plugintypes.GetCommunityResponse{Items: []plugintypes.Post{}}
	a.invoke(ctx, plugin.MethodGetCommunity, req, out)
	return out, nil
}

func (a *Adapter) GetCommunities(ctx context.Context, req *plugintypes.GetCommunitiesRequest) (*plugintypes.GetCommunitiesResponse, error) {
	out := &plugintypes.GetCommunitiesResponse{Items: []plugintypes.Community{}}
	a.invoke(ctx, plugin.MethodGetCommunities, req, out)
	return out, nil
}

func (a *Adapter) GetComments(ctx context.Context, req *plugintypes.GetCommentsRequest) (*plugintypes.GetCommentsResponse, error) {
	out := &plugintypes.GetCommentsResponse{Items: []plugintypes.Post{}}
	a.invoke(ctx, plugin.MethodGetComments, req, out)
	return out, nil
}

func (a *Adapter) GetCommentReplies(ctx context.Context, req *plugintypes.GetCommentRepliesRequest) (*plugintypes.GetCommentRepliesResponse, error) {
	out := &plugintypes.GetCommentRepliesResponse{Items: []plugintypes.Post{}}
	a.invoke(ctx, plugin.MethodGetCommentReplies, req, out)
	return out, nil
}

func (a *Adapter) GetUser(ctx context.Context, req *plugintypes.GetUserRequest) (*plugintypes.GetUserResponse, error) {
	out := &plugintypes.GetUserResponse{Items: []plugintypes.Post{}}
	a.invoke(ctx, plugin.MethodGetUser, req, out)
	return out, nil
}

func (a *Adapter) Search(ctx context.Context, req *plugintypes.SearchRequest) (*plugintypes.SearchResponse, error) {
	out := &plugintypes.SearchResponse{Items: []plugintypes.Post{}}
	a.invoke(ctx, plugin.MethodSearch, req, out)
	return out, nil
}

func (a *Adapter) GetTrendingTopics(ctx context.Context, req *plugintypes.GetTrendingTopicsRequest) (*plugintypes.GetTrendingTopicsResponse, error) {
	out := &plugintypes.GetTrendingTopicsResponse{Items: []plugintypes.TrendingTopic{}}
	a.invoke(ctx, plugin.MethodGetTrendingTopics, req, out)
	return out, nil
}

func (a *Adapter) GetTrendingTopicFeed(ctx context.Context, req *plugintypes.GetTrendingTopicFeedRequest) (*plugintypes.GetTrendingTopicFeedResponse, error) {
	out := &plugintypes.GetTrendingTopicFeedResponse{Items: []plugintypes.Post{}}
	a.invoke(ctx, plugin.MethodGetTrendingTopicFeed, req, out)
	return out, nil
}

// Login is never degraded: a plugin without onLogin cannot log in, and the
// caller needs to know.
func (a *Adapter) Login(ctx context.Context, req *plugintypes.LoginRequest) error {
	ch := a.channel()
	if ch == nil {
		return plugin.ErrNotLoaded
	}
	defined, err := ch.HasDefined(ctx, plugin.MethodLogin)
	if err != nil {
		return err
	}
	if !defined {
		return plugin.ErrNotFound
	}
	return ch.Invoke(ctx, plugin.MethodLogin, req, nil)
}

func (a *Adapter) Logout(ctx context.Context) error {
	ch := a.channel()
	if ch == nil {
		return plugin.ErrNotLoaded
	}
	defined, err := ch.HasDefined(ctx, plugin.MethodLogout)
	if err != nil {
		return err
	}
	if !defined {
		return nil
	}
	return ch.Invoke(ctx, plugin.MethodLogout, nil, nil)
}

func (a *Adapter) IsLoggedIn(ctx context.Context) (bool, error) {
	ch := a.channel()
	if ch == nil {
		return false, plugin.ErrNotLoaded
	}
	defined, err := ch.HasDefined(ctx, plugin.MethodIsLoggedIn)
	if err != nil || !defined {
		return false, err
	}
	var loggedIn bool
	if err := ch.Invoke(ctx, plugin.MethodIsLoggedIn, nil, &loggedIn); err != nil {
		return false, err
	}
	return loggedIn, nil
}
