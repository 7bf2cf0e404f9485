// 包 version：构建信息，发布时通过 -ldflags "-X geoenrich/internal/version.Version=..." 注入
package version

var (
	Version = "1.0.0"
	Commit  = "dev"
)

// String：版本与提交号
func String() string { return Version + " (" + Commit + ")" }
