package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// dialect is the per-platform part of a Host.
type dialect interface {
	name() string
	inputKey(name string) string
	log(h *Host, level Level, msg string)
	setSecret(out io.Writer, value string)
	setOutput(h *Host, name, value string) error
	defaultCacheRoot(variable func(string) string) (string, error)
}

func upperInputKey(prefix, name string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

func cacheRootFrom(variable func(string) string, key string) (string, error) {
	if v := variable(key); v != "" {
		return v, nil
	}
	return userCacheRoot()
}

// localDialect logs through zap and writes outputs to a dotenv file named
// by VSIXCTL_OUTPUT, or to Out.
type localDialect struct{}

func (localDialect) name() string { return NameLocal }

func (localDialect) inputKey(name string) string {
	return "VSIXCTL_" + strings.ToUpper(normalizeInputName(name))
}

func (localDialect) log(h *Host, level Level, msg string) {
	if h.logger == nil {
		if level > LevelDebug {
			_, _ = fmt.Fprintln(h.out, msg)
		}
		return
	}
	switch level {
	case LevelDebug:
		h.logger.Debug(msg, nil)
	case LevelInfo:
		h.logger.Info(msg, nil)
	case LevelWarning:
		h.logger.Warn(msg, nil)
	default:
		h.logger.Error(msg, nil)
	}
}

func (localDialect) setSecret(io.Writer, string) {}

func (localDialect) setOutput(h *Host, name, value string) error {
	path := h.Variable("VSIXCTL_OUTPUT")
	if path == "" {
		_, err := fmt.Fprintf(h.out, "%s=%s\n", name, h.Mask(value))
		return err
	}
	vals, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read outputs %s: %w", path, err)
	}
	if vals == nil {
		vals = make(map[string]string)
	}
	vals[name] = value
	if err := godotenv.Write(vals, path); err != nil {
		return fmt.Errorf("write outputs %s: %w", path, err)
	}
	return nil
}

func (localDialect) defaultCacheRoot(func(string) string) (string, error) {
	return userCacheRoot()
}

// azureDialect speaks ##vso logging commands.
type azureDialect struct{}

func (azureDialect) name() string { return NameAzurePipelines }

func (azureDialect) inputKey(name string) string { return upperInputKey("INPUT_", name) }

var (
	azureDataEscaper = strings.NewReplacer("%", "%AZP25", "\r", "%0D", "\n", "%0A")
	azurePropEscaper = strings.NewReplacer("%", "%AZP25", "\r", "%0D", "\n", "%0A", ";", "%3B", "]", "%5D")
)

func (azureDialect) log(h *Host, level Level, msg string) {
	var line string
	switch level {
	case LevelDebug:
		line = "##vso[task.debug]" + azureDataEscaper.Replace(msg)
	case LevelWarning:
		line = "##vso[task.logissue type=warning;]" + azureDataEscaper.Replace(msg)
	case LevelError:
		line = "##vso[task.logissue type=error;]" + azureDataEscaper.Replace(msg)
	default:
		line = msg
	}
	_, _ = fmt.Fprintln(h.out, line)
}

func (azureDialect) setSecret(out io.Writer, value string) {
	_, _ = fmt.Fprintln(out, "##vso[task.setsecret]"+azureDataEscaper.Replace(value))
}

func (azureDialect) setOutput(h *Host, name, value string) error {
	_, err := fmt.Fprintf(h.out, "##vso[task.setvariable variable=%s;isOutput=true;issecret=false;]%s\n",
		azurePropEscaper.Replace(name), azureDataEscaper.Replace(value))
	return err
}

func (azureDialect) defaultCacheRoot(variable func(string) string) (string, error) {
	return cacheRootFrom(variable, "AGENT_TOOLSDIRECTORY")
}

// githubDialect speaks ::workflow commands and writes outputs to the file
// named by GITHUB_OUTPUT.
type githubDialect struct{}

func (githubDialect) name() string { return NameGitHubActions }

func (githubDialect) inputKey(name string) string { return upperInputKey("INPUT_", name) }

var githubDataEscaper = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A")

func (githubDialect) log(h *Host, level Level, msg string) {
	var line string
	switch level {
	case LevelDebug:
		line = "::debug::" + githubDataEscaper.Replace(msg)
	case LevelWarning:
		line = "::warning::" + githubDataEscaper.Replace(msg)
	case LevelError:
		line = "::error::" + githubDataEscaper.Replace(msg)
	default:
		line = msg
	}
	_, _ = fmt.Fprintln(h.out, line)
}

func (githubDialect) setSecret(out io.Writer, value string) {
	_, _ = fmt.Fprintln(out, "::add-mask::"+githubDataEscaper.Replace(value))
}

func (githubDialect) setOutput(h *Host, name, value string) error {
	path := h.Variable("GITHUB_OUTPUT")
	if path == "" {
		_, err := fmt.Fprintf(h.out, "::set-output name=%s::%s\n", name, githubDataEscaper.Replace(value))
		return err
	}
	delim := "ghadelimiter_" + uuid.NewString()
	if strings.Contains(name, delim) || strings.Contains(value, delim) {
		return fmt.Errorf("output %s: value contains the delimiter", name)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open GITHUB_OUTPUT: %w", err)
	}
	_, werr := fmt.Fprintf(f, "%s<<%s\n%s\n%s\n", name, delim, value, delim)
	cerr := f.Close()
	return errors.Join(werr, cerr)
}

func (githubDialect) defaultCacheRoot(variable func(string) string) (string, error) {
	return cacheRootFrom(variable, "RUNNER_TOOL_CACHE")
}
