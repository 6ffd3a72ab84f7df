package secgate

import "regexp"

// Plan selects the policy set in force.
type Plan string

const (
	PlanFree  Plan = "free"
	PlanBasic Plan = "basic"
	PlanPro   Plan = "pro"
)

// Policy is the per-plan rule set: permitted base commands, denied base
// commands, and commands that need explicit operator consent.
type Policy struct {
	Whitelist    map[string]bool
	Blacklist    map[string]bool
	Confirmation map[string]bool
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

var baseBlocked = []string{
	"sudo", "su", "passwd", "useradd", "userdel", "usermod", "systemctl", "service",
	"mount", "umount", "fdisk", "mkfs", "iptables", "ufw", "firewall-cmd", "setenforce",
	"crontab", "at", "batch", "nc", "netcat", "nmap", "tcpdump", "wireshark", "rm -rf",
}

// PolicyFor returns the rule set for a plan. Unknown plans fall back to free.
func PolicyFor(plan Plan) Policy {
	switch plan {
	case PlanBasic:
		return Policy{
			Whitelist: set(
				"ls", "pwd", "cd", "cat", "grep", "find", "which", "echo", "date", "whoami",
				"python", "python3", "node", "pip", "git", "npm", "yarn",
				"mkdir", "rmdir", "touch", "cp", "mv", "rm",
			),
			Blacklist:    set(baseBlocked...),
			Confirmation: set("rm", "rmdir", "mv", "cp", "git push"),
		}
	case PlanPro:
		return Policy{
			Whitelist: set(
				"ls", "pwd", "cd", "cat", "grep", "find", "which", "echo", "date", "whoami",
				"python", "python3", "node", "pip", "git", "npm", "yarn", "docker", "kubectl",
				"mkdir", "rmdir", "touch", "cp", "mv", "rm", "chmod", "chown",
				"curl", "wget", "ping", "ssh", "scp",
				"vim", "nano", "code", "less", "more", "head", "tail", "sort", "uniq", "wc",
			),
			Blacklist:    set(baseBlocked...),
			Confirmation: set("rm", "rmdir", "mv", "cp", "chmod", "chown", "git push", "docker run"),
		}
	default:
		return Policy{
			Whitelist: set(
				"ls", "pwd", "cd", "cat", "grep", "find", "which", "echo", "date", "whoami",
				"python", "python3", "node", "pip",
			),
			Blacklist:    set(baseBlocked...),
			Confirmation: set("rm", "rmdir", "mv", "cp"),
		}
	}
}

// blacklistPattern pairs a compiled rule with the human label used in
// rejection reasons.
type blacklistPattern struct {
	re    *regexp.Regexp
	label string
}

var blacklistPatterns = []blacklistPattern{
	{regexp.MustCompile(`(?i)\bsudo\b`), "sudo"},
	{regexp.MustCompile(`(?i)\bsu\b`), "su"},
	{regexp.MustCompile(`(?i)rm\s+-rf\s+/`), "rm -rf /"},
	{regexp.MustCompile(`(?i)chmod\s+777`), "chmod 777"},
	{regexp.MustCompile(`>\s*/dev/`), "> /dev/"},
	{regexp.MustCompile(`\|\s*sh\b`), "| sh"},
	{regexp.MustCompile(`\|\s*bash\b`), "| bash"},
	{regexp.MustCompile(`\$\(`), "$("},
	{regexp.MustCompile("`.*`"), "backticks"},
}

var confirmationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^rm\s+`),
	regexp.MustCompile(`(?i)^mv\s+`),
	regexp.MustCompile(`(?i)^cp\s+-r\s+`),
	regexp.MustCompile(`(?i)\bgit\s+push\b`),
	regexp.MustCompile(`(?i)\bdocker\s+run\b`),
}

// safeCompositions are command shapes allowed to carry shell
// metacharacters.
var safeCompositions = []*regexp.Regexp{
	regexp.MustCompile(`grep.*\|.*less`),
	regexp.MustCompile(`cat.*\|.*grep`),
	regexp.MustCompile(`ls.*\|.*grep`),
	regexp.MustCompile(`find.*\|.*grep`),
	regexp.MustCompile(`echo.*>.*\.txt`),
}

var dangerousPaths = []string{"/etc/", "/usr/bin/", "/bin/", "/sbin/", "/root/"}

var destructiveVerbs = []string{"rm", "mv", "chmod"}

// safeAlternatives is the static advice table for rejected commands.
var safeAlternatives = map[string]string{
	"sudo":      "Ejecuta el comando sin sudo o configura permisos apropiados",
	"su":        "Usa tu usuario actual o configura permisos apropiados",
	"passwd":    "Cambia la contraseña desde la configuración del sistema",
	"useradd":   "Gestiona usuarios desde la interfaz del sistema",
	"systemctl": "Usa herramientas de monitoreo en lugar de controlar servicios",
	"mount":     "Los dispositivos se montan automáticamente",
	"iptables":  "Configura el firewall desde la interfaz del sistema",
	"nc":        "Usa curl o wget para conexiones de red",
	"nmap":      "Usa herramientas de diagnóstico de red más específicas",
}
