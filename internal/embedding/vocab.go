package embedding

// stopWords are dropped by Tokenize.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "its": true, "let": true, "may": true, "who": true,
	"did": true, "get": true, "got": true, "him": true, "his": true,
	"how": true, "now": true, "see": true, "way": true, "too": true,
	"that": true, "with": true, "have": true, "this": true, "will": true,
	"your": true, "from": true, "they": true, "been": true, "said": true,
	"each": true, "which": true, "their": true, "what": true, "about": true,
	"would": true, "there": true, "when": true, "make": true, "like": true,
	"just": true, "into": true, "than": true, "them": true, "then": true,
	"these": true, "some": true, "could": true, "only": true, "over": true,
	"such": true, "also": true, "were": true, "where": true, "should": true,
	"very": true, "does": true, "doing": true, "being": true, "because": true,
}

// vocabulary is the curated set of common software terms. Tokens in it get a
// flat weight of 1 so that ubiquitous jargon does not dominate a vector.
var vocabulary = map[string]bool{
	// languages and runtimes
	"javascript": true, "typescript": true, "python": true, "golang": true,
	"rust": true, "java": true, "node": true, "deno": true, "html": true, "css": true,
	"sql": true, "bash": true, "shell": true,
	// frameworks and libraries
	"react": true, "hooks": true, "redux": true, "vue": true, "angular": true,
	"svelte": true, "nextjs": true, "express": true, "django": true, "flask": true,
	"spring": true, "rails": true, "tailwind": true, "webpack": true, "vite": true,
	// infrastructure
	"docker": true, "kubernetes": true, "aws": true, "azure": true, "gcp": true,
	"postgres": true, "postgresql": true, "mysql": true, "sqlite": true, "redis": true,
	"mongodb": true, "kafka": true, "nginx": true, "linux": true, "git": true,
	"github": true, "terraform": true,
	// general programming
	"function": true, "functions": true, "method": true, "class": true, "object": true,
	"variable": true, "state": true, "component": true, "components": true,
	"module": true, "package": true, "import": true, "export": true, "interface": true,
	"type": true, "types": true, "array": true, "string": true, "number": true,
	"boolean": true, "error": true, "errors": true, "exception": true, "async": true,
	"await": true, "promise": true, "callback": true, "event": true, "events": true,
	"loop": true, "return": true, "value": true, "values": true, "data": true,
	"api": true, "rest": true, "http": true, "request": true, "response": true,
	"server": true, "client": true, "database": true, "query": true, "schema": true,
	"table": true, "index": true, "cache": true, "config": true, "configuration": true,
	"test": true, "tests": true, "testing": true, "debug": true, "build": true,
	"deploy": true, "deployment": true, "code": true, "file": true, "files": true,
	"project": true, "user": true, "users": true, "performance": true, "security": true,
	"memory": true, "thread": true, "process": true, "service": true, "services": true,
	"architecture": true, "pattern": true, "patterns": true, "design": true,
	"refactor": true, "refactoring": true, "bug": true, "fix": true, "feature": true,
	"library": true, "framework": true, "dependency": true, "dependencies": true,
	"version": true, "update": true, "implementation": true, "implement": true,
	"algorithm": true, "structure": true, "logic": true, "model": true, "models": true,
	"route": true, "routing": true, "auth": true, "authentication": true, "token": true,
	"frontend": true, "backend": true, "fullstack": true, "render": true, "rendering": true,
	"props": true, "context": true, "effect": true, "reducer": true, "store": true,
	"hook": true, "use": true, "concurrency": true, "goroutine": true, "channel": true,
}
