package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"trainee": {
		"case:view",
		"session:open",
		"session:save",
		"session:submit",
		"attempt:view-own",
	},
	"instructor": {
		"case:view",
		"case:create",
		"case:view-keys",
		"attempt:view-all",
		"cohort:view",
		"users:list",
	},
	"admin": {
		"*", // everything
	},
}
