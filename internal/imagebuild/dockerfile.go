package imagebuild

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Dockerfile 渲染构建计划，相同计划输出逐字节一致
func (p *Plan) Dockerfile() string {
	var b strings.Builder
	b.WriteString("# syntax=docker/dockerfile:1\n")
	b.WriteString("# Generated by `leadflow image dockerfile`.\n")
	for _, s := range p.Steps() {
		b.WriteString(renderStep(s))
		b.WriteByte('\n')
	}
	return b.String()
}

// DockerIgnore 渲染与 Dagger 源码复制相同的排除列表，
// 让 docker build 的 `COPY . .` 与 Builder 看到同一份上下文
func (p *Plan) DockerIgnore() string {
	var b strings.Builder
	b.WriteString("# Generated by `leadflow image dockerignore`.\n")
	for _, e := range sourceExcludes {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	return b.String()
}

func renderStep(s Step) string {
	switch s.Kind {
	case StepRun:
		if len(s.Args) == 3 && s.Args[0] == "sh" && s.Args[1] == "-c" {
			return "RUN " + s.Args[2]
		}
		return "RUN " + execForm(s.Args)
	case StepCmd:
		return "CMD " + execForm(s.Args)
	case StepEnv:
		return fmt.Sprintf("ENV %s=%s", s.Args[0], s.Args[1])
	default:
		return string(s.Kind) + " " + strings.Join(s.Args, " ")
	}
}

// execForm JSON 数组形式，不转义 & < >
func execForm(args []string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(args)
	return strings.TrimSuffix(buf.String(), "\n")
}
