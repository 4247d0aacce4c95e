package plugin

// Capability method names. A plugin implements a capability by defining a
// global Lua function with the matching name; the host probes with
// Channel.HasDefined before dispatching.
const (
	MethodGetInstances         = "onGetInstances"
	MethodGetFeed              = "onGetFeed"
	MethodGetCommunity         = "onGetCommunity"
	MethodGetCommunities       = "onGetCommunities"
	MethodGetComments          = "onGetComments"
	MethodGetCommentReplies    = "onGetCommentReplies"
	MethodGetUser              = "onGetUser"
	MethodSearch               = "onSearch"
	MethodGetTrendingTopics    = "onGetTrendingTopics"
	MethodGetTrendingTopicFeed = "onGetTrendingTopicFeed"
	MethodLogin                = "onLogin"
	MethodLogout               = "onLogout"
	MethodIsLoggedIn           = "onIsLoggedIn"
	MethodGetPlatformType      = "onGetPlatformType"

	// Push-only notifications. The host never waits on these.
	MethodUIMessage   = "onUiMessage"
	MethodChangeTheme = "onChangeTheme"
	MethodPostLogin   = "onPostLogin"
	MethodPostLogout  = "onPostLogout"
)
