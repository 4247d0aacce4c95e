// Package plugintypes declares the normalized data model shared by every
// backend integration, sandboxed or not. A plugin translates whatever its
// platform returns into these shapes; downstream code never sees a
// platform-specific schema.
package plugintypes

// PlatformType selects how a backend's content is presented.
type PlatformType string

// Known platform types.
const (
	PlatformForum      PlatformType = "forum"
	PlatformMicroblog  PlatformType = "microblog"
	PlatformImageboard PlatformType = "imageboard"
)

// Valid reports whether pt is one of the known platform types.
func (pt PlatformType) Valid() bool {
	switch pt {
	case PlatformForum, PlatformMicroblog, PlatformImageboard:
		return true
	}
	return false
}

// Theme is the host UI theme, surfaced to plugins so option pages can match.
type Theme string

// Known themes.
const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// PageInfo carries pagination state. Offset-based backends fill
// Offset/ResultsPerPage; cursor-based backends fill Page/NextPage/PrevPage.
type PageInfo struct {
	TotalResults   int    `json:"totalResults,omitempty"`
	ResultsPerPage int    `json:"resultsPerPage,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	Page           string `json:"page,omitempty"`
	NextPage       string `json:"nextPage,omitempty"`
	PrevPage       string `json:"prevPage,omitempty"`
}

// Post is the single optional-field superset representing a forum thread, a
// microblog status, an imageboard thread, or a comment on any of them.
type Post struct {
	Number         int    `json:"number,omitempty"`
	APIID          string `json:"apiId,omitempty"`
	Title          string `json:"title,omitempty"`
	Body           string `json:"body,omitempty"`
	PublishedDate  string `json:"publishedDate,omitempty"`
	CommunityAPIID string `json:"communityApiId,omitempty"`
	CommunityName  string `json:"communityName,omitempty"`
	AuthorAPIID    string `json:"authorApiId,omitempty"`
	AuthorName     string `json:"authorName,omitempty"`
	AuthorAvatar   string `json:"authorAvatar,omitempty"`
	PluginID       string `json:"pluginId,omitempty"`
	InstanceID     string `json:"instanceId,omitempty"`
	OriginalURL    string `json:"originalUrl,omitempty"`
	URL            string `json:"url,omitempty"`
	ThumbnailURL   string `json:"thumbnailUrl,omitempty"`
	ParentID       string `json:"parentId,omitempty"`
	Comments       []Post `json:"comments,omitempty"`
	Score          int    `json:"score,omitempty"`
	NumOfComments  int    `json:"numOfComments,omitempty"`
	// Cursor fields for fetching collapsed reply chains.
	MoreRepliesID    string `json:"moreRepliesId,omitempty"`
	MoreRepliesCount int    `json:"moreRepliesCount,omitempty"`
	IsVideo          bool   `json:"isVideo,omitempty"`
}

// User is a platform account.
type User struct {
	APIID      string `json:"apiId"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar,omitempty"`
	InstanceID string `json:"instanceId,omitempty"`
	PluginID   string `json:"pluginId,omitempty"`
}

// Community is a forum, subreddit, magazine, board or equivalent grouping.
type Community struct {
	APIID       string `json:"apiId"`
	Name        string `json:"name"`
	InstanceID  string `json:"instanceId,omitempty"`
	Description string `json:"description,omitempty"`
	PluginID    string `json:"pluginId,omitempty"`
}

// Instance is one server of a federated platform.
type Instance struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	URL           string `json:"url"`
	APIID         string `json:"apiId"`
	IconURL       string `json:"iconUrl,omitempty"`
	BannerURL     string `json:"bannerUrl,omitempty"`
	BannerSVG     string `json:"bannerSvg,omitempty"`
	UsersCount    int    `json:"usersCount,omitempty"`
	PostsCount    int    `json:"postsCount,omitempty"`
	CommentsCount int    `json:"commentsCount,omitempty"`
	PluginID      string `json:"pluginId,omitempty"`
}

// TrendingTopicHistory is one day of usage stats for a trending topic.
type TrendingTopicHistory struct {
	Day      string `json:"day"`
	Uses     string `json:"uses"`
	Accounts string `json:"accounts"`
}

// TrendingTopic is a trending tag or subject on a microblog platform.
type TrendingTopic struct {
	Name     string                 `json:"name"`
	URL      string                 `json:"url,omitempty"`
	History  []TrendingTopicHistory `json:"history,omitempty"`
	PluginID string                 `json:"pluginId,omitempty"`
}

// FeedType is one selectable ordering/source of a feed (hot, new, etc).
type FeedType struct {
	DisplayName string `json:"displayName"`
	ID          string `json:"id"`
}

// GetInstancesRequest asks for the platform's known instances.
type GetInstancesRequest struct {
	PageInfo *PageInfo `json:"pageInfo,omitempty"`
}

// GetInstancesResponse lists instances.
type GetInstancesResponse struct {
	Instances []Instance `json:"instances"`
	PageInfo  *PageInfo  `json:"pageInfo,omitempty"`
}

// GetFeedRequest asks for a front-page style feed.
type GetFeedRequest struct {
	PageInfo   *PageInfo `json:"pageInfo,omitempty"`
	InstanceID string    `json:"instanceId,omitempty"`
	FeedTypeID string    `json:"feedTypeId,omitempty"`
}

// GetFeedResponse is a page of posts plus the available feed orderings.
type GetFeedResponse struct {
	PageInfo   *PageInfo  `json:"pageInfo,omitempty"`
	Items      []Post     `json:"items"`
	FeedTypes  []FeedType `json:"feedTypes,omitempty"`
	FeedTypeID string     `json:"feedTypeId,omitempty"`
	Instance   *Instance  `json:"instance,omitempty"`
}

// GetCommunityRequest asks for one community and its posts.
type GetCommunityRequest struct {
	APIID      string    `json:"apiId"`
	InstanceID string    `json:"instanceId,omitempty"`
	PageInfo   *PageInfo `json:"pageInfo,omitempty"`
}

// GetCommunityResponse carries the community and a page of its posts.
type GetCommunityResponse struct {
	PageInfo  *PageInfo  `json:"pageInfo,omitempty"`
	Community *Community `json:"community,omitempty"`
	Items     []Post     `json:"items"`
}

// GetCommunitiesRequest asks for the communities of an instance.
type GetCommunitiesRequest struct {
	InstanceID string    `json:"instanceId,omitempty"`
	PageInfo   *PageInfo `json:"pageInfo,omitempty"`
}

// GetCommunitiesResponse lists communities.
type GetCommunitiesResponse struct {
	Items    []Community `json:"items"`
	PageInfo *PageInfo   `json:"pageInfo,omitempty"`
}

// GetCommentsRequest asks for the comments of a post.
type GetCommentsRequest struct {
	CommunityID string `json:"communityId,omitempty"`
	APIID       string `json:"apiId,omitempty"`
	InstanceID  string `json:"instanceId,omitempty"`
}

// GetCommentsResponse carries a post's comment tree.
type GetCommentsResponse struct {
	Items     []Post     `json:"items"`
	Post      *Post      `json:"post,omitempty"`
	Community *Community `json:"community,omitempty"`
	PageInfo  *PageInfo  `json:"pageInfo,omitempty"`
}

// GetCommentRepliesRequest expands a collapsed reply chain.
type GetCommentRepliesRequest struct {
	APIID          string `json:"apiId"`
	CommunityAPIID string `json:"communityApiId,omitempty"`
	PostAPIID      string `json:"postApiId,omitempty"`
	InstanceID     string `json:"instanceId,omitempty"`
}

// GetCommentRepliesResponse carries the expanded replies.
type GetCommentRepliesResponse struct {
	Items    []Post    `json:"items"`
	Post     *Post     `json:"post,omitempty"`
	PageInfo *PageInfo `json:"pageInfo,omitempty"`
}

// GetUserRequest asks for a user profile and their posts.
type GetUserRequest struct {
	APIID      string `json:"apiId"`
	InstanceID string `json:"instanceId,omitempty"`
}

// GetUserResponse carries the profile and a page of their posts.
type GetUserResponse struct {
	PageInfo *PageInfo `json:"pageInfo,omitempty"`
	User     *User     `json:"user,omitempty"`
	Items    []Post    `json:"items"`
}

// SearchRequest is a free-text search.
type SearchRequest struct {
	Query      string    `json:"query"`
	PageInfo   *PageInfo `json:"pageInfo,omitempty"`
	InstanceID string    `json:"instanceId,omitempty"`
}

// SearchResponse is a page of matching posts.
type SearchResponse struct {
	Items    []Post    `json:"items"`
	PageInfo *PageInfo `json:"pageInfo,omitempty"`
}

// GetTrendingTopicsRequest asks for currently trending topics.
type GetTrendingTopicsRequest struct {
	InstanceID string `json:"instanceId,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// GetTrendingTopicsResponse lists trending topics.
type GetTrendingTopicsResponse struct {
	Items    []TrendingTopic `json:"items"`
	PageInfo *PageInfo       `json:"pageInfo,omitempty"`
}

// GetTrendingTopicFeedRequest asks for the posts under one trending topic.
type GetTrendingTopicFeedRequest struct {
	TopicName  string    `json:"topicName"`
	InstanceID string    `json:"instanceId,omitempty"`
	PageInfo   *PageInfo `json:"pageInfo,omitempty"`
}

// GetTrendingTopicFeedResponse is a page of posts for a topic.
type GetTrendingTopicFeedResponse struct {
	Items    []Post         `json:"items"`
	PageInfo *PageInfo      `json:"pageInfo,omitempty"`
	Topic    *TrendingTopic `json:"topic,omitempty"`
}

// LoginRequest carries plugin-defined credentials.
type LoginRequest struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

// NetworkRequest is the init half of the fetch proxy: everything a plugin may
// set on an outbound request.
type NetworkRequest struct {
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// NetworkResponse is the normalized response returned across the sandbox
// boundary, independent of the transport that produced it.
type NetworkResponse struct {
	Body       []byte            `json:"body"`
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	URL        string            `json:"url"`
}
