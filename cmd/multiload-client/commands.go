// commands.go — одноразовые команды CLI: загрузка состояния,
// одна команда сервера, вывод результата.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/dustin/go-humanize"

	"github.com/udda/multiload-ng/internal/cmdclient"
	"github.com/udda/multiload-ng/internal/domain/model"
	"github.com/udda/multiload-ng/internal/service"
)

// errUsage — некорректные аргументы команды.
var errUsage = errors.New("некорректные аргументы")

// runOnce выполняет одну команду и возвращает код завершения.
func runOnce(opts docopt.Opts, client *cmdclient.Client, logger *slog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess := service.NewSession(client, service.NewImageView(client, logger), service.SessionOptions{}, logger)
	defer sess.Close()

	if err := loadState(ctx, opts, sess.Store(), logger); err != nil {
		return fail(err)
	}

	return execute(ctx, opts, sess, client, os.Stdout)
}

// loadState загружает состояние сервера для одной команды. Загрузки
// независимы: без списка элементов команда не выполняется, без каталога
// не создаётся график, остальные ошибки только логируются.
// Опрос в одноразовой сессии не запущен, шлюз не нужен.
func loadState(ctx context.Context, opts docopt.Opts, store *service.Store, logger *slog.Logger) error {
	if err := store.LoadData(ctx); err != nil {
		return err
	}

	if err := store.LoadGraphTypes(ctx); err != nil {
		if flag(opts, "create") && flag(opts, "graph") {
			return err
		}
		logger.Warn("Каталог типов графиков не загружен", slog.String("error", err.Error()))
	}
	if err := store.LoadLibraryVersion(ctx); err != nil {
		logger.Warn("Версия библиотеки не загружена", slog.String("error", err.Error()))
	}
	if err := store.LoadLocalization(ctx); err != nil {
		logger.Warn("Локализация не загружена", slog.String("error", err.Error()))
	}
	return nil
}

// execute выполняет команду, выбранную в opts, над загруженной сессией.
func execute(ctx context.Context, opts docopt.Opts, sess *service.Session, images service.ImageFetcher, out io.Writer) int {
	var err error
	switch {
	case flag(opts, "list"):
		err = listElements(ctx, sess, images, out)
	case flag(opts, "create"):
		err = createElement(ctx, opts, sess, out)
	case flag(opts, "delete"):
		err = withIndex(opts, func(index int) error {
			if err := sess.Commands().Delete(ctx, index); err != nil {
				return err
			}
			fmt.Fprintf(out, "deleted element %d\n", index)
			return nil
		})
	case flag(opts, "move"):
		err = moveElement(ctx, opts, sess, out)
	case flag(opts, "pause"), flag(opts, "resume"):
		err = withIndex(opts, func(index int) error {
			if flag(opts, "pause") {
				if err := sess.Commands().Pause(ctx, index); err != nil {
					return err
				}
				fmt.Fprintf(out, "paused graph %d\n", index)
				return nil
			}
			if err := sess.Commands().Resume(ctx, index); err != nil {
				return err
			}
			fmt.Fprintf(out, "resumed graph %d\n", index)
			return nil
		})
	case flag(opts, "set"):
		err = setField(ctx, opts, sess, out)
	case flag(opts, "config"):
		err = graphConfig(ctx, opts, sess, out)
	case flag(opts, "save"):
		if err = sess.Commands().Save(ctx); err == nil {
			fmt.Fprintln(out, "configuration saved")
		}
	case flag(opts, "reload"):
		if err = sess.Commands().ReloadFromFile(ctx); err == nil {
			fmt.Fprintln(out, "configuration reloaded from file")
		}
	case flag(opts, "has-file"):
		var has bool
		if has, err = sess.Commands().HasFile(ctx); err == nil {
			fmt.Fprintln(out, yesNo(has))
		}
	default:
		err = fmt.Errorf("%w: неизвестная команда", errUsage)
	}

	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitUsage
		}
		return fail(err)
	}
	return exitOK
}

// listElements печатает список элементов и размер текущего изображения.
func listElements(ctx context.Context, sess *service.Session, images service.ImageFetcher, out io.Writer) error {
	store := sess.Store()
	product, version := store.ServerInfo()
	c := store.Container()

	fmt.Fprintf(out, "%s %s (library %s)\n", product, version, store.LibraryVersion())
	fmt.Fprintf(out, "container: %dpx %s, padding %dpx\n", c.Size, c.Orientation, c.Padding)

	for i, el := range store.Elements() {
		if !el.IsGraph() {
			fmt.Fprintf(out, "%3d  %-9s  size=%d\n", i, el.Type, el.Size)
			continue
		}
		g := el.Graph
		label := store.Localize(store.GraphLabel(g.GraphType))
		fmt.Fprintf(out, "%3d  %-9s  %s (%s) size=%d border=%d interval=%dms ceiling=%s\n",
			i, el.Type, g.GraphType, label, el.Size, g.Border, g.Interval, formatCeiling(g.Ceiling))
	}

	if images != nil {
		img, err := images.FetchImage(ctx)
		if err != nil {
			fmt.Fprintln(out, "image: unavailable")
		} else {
			fmt.Fprintf(out, "image: %s\n", humanize.Bytes(uint64(len(img))))
		}
	}
	return nil
}

// createElement создаёт график или разделитель.
func createElement(ctx context.Context, opts docopt.Opts, sess *service.Session, out io.Writer) error {
	size, err := intOpt(opts, "--size")
	if err != nil {
		return err
	}
	position, err := intOpt(opts, "--position")
	if err != nil {
		return err
	}
	if !model.ElementSizeBounds.Contains(int64(size)) {
		return fmt.Errorf("%w: --size вне диапазона %d-%d", errUsage, model.ElementSizeBounds.Min, model.ElementSizeBounds.Max)
	}

	if flag(opts, "separator") {
		index, err := sess.Commands().CreateSeparator(ctx, size, position)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "created separator at index %d\n", index)
		return nil
	}

	graphType, _ := opts.String("<graph-type>")
	border, err := intOpt(opts, "--border")
	if err != nil {
		return err
	}
	interval, err := intOpt(opts, "--interval")
	if err != nil {
		return err
	}
	if err := model.ValidateGraphGeometry(size, border); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if store := sess.Store(); store.GraphTypesLoaded() {
		if _, ok := store.GraphType(graphType); !ok {
			return fmt.Errorf("%w: неизвестный тип графика %q", errUsage, graphType)
		}
	}

	index, err := sess.Commands().CreateGraph(ctx, graphType, size, border, interval, position)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created graph %s at index %d\n", graphType, index)
	return nil
}

// moveElement переставляет элемент через контроллер перестановки.
func moveElement(ctx context.Context, opts docopt.Opts, sess *service.Session, out io.Writer) error {
	from, err := intOpt(opts, "<from>")
	if err != nil {
		return err
	}
	to, err := intOpt(opts, "<to>")
	if err != nil {
		return err
	}

	rc := sess.Reorder()
	if err := rc.Begin(from); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if err := rc.Preview(to); err != nil {
		rc.Cancel()
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if err := rc.End(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "moved element %d to %d\n", from, to)
	return nil
}

// setField изменяет одно числовое поле элемента.
func setField(ctx context.Context, opts docopt.Opts, sess *service.Session, out io.Writer) error {
	index, err := intOpt(opts, "<index>")
	if err != nil {
		return err
	}
	raw, _ := opts.String("<value>")
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: <value> должно быть целым числом: %q", errUsage, raw)
	}

	cmds := sess.Commands()
	switch {
	case flag(opts, "size"):
		accepted, err := cmds.SetElementSize(ctx, index, int(value))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "size of element %d set to %d\n", index, accepted)
	case flag(opts, "border"):
		accepted, err := cmds.SetGraphBorder(ctx, index, int(value))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "border of graph %d set to %d\n", index, accepted)
	case flag(opts, "ceiling"):
		accepted, err := cmds.SetGraphCeiling(ctx, index, value)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "ceiling of graph %d set to %s\n", index, formatCeiling(accepted))
	case flag(opts, "interval"):
		accepted, err := cmds.SetGraphInterval(ctx, index, int(value))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "interval of graph %d set to %dms\n", index, accepted)
	}
	return nil
}

// graphConfig печатает или изменяет конфигурацию графика.
func graphConfig(ctx context.Context, opts docopt.Opts, sess *service.Session, out io.Writer) error {
	index, err := intOpt(opts, "<index>")
	if err != nil {
		return err
	}
	key, _ := opts.String("<key>")
	value, hasValue := opts["<value>"].(string)
	cmds := sess.Commands()

	switch {
	case key == "":
		entries, err := cmds.ConfigEntries(ctx, index)
		if err != nil {
			return err
		}
		for _, e := range entries {
			v, err := cmds.GraphConfig(ctx, index, e.Key)
			if err != nil {
				v = "-"
			}
			fmt.Fprintf(out, "%-16s %-24s %s\n", e.Key, e.Label, v)
		}
	case !hasValue:
		v, err := cmds.GraphConfig(ctx, index, key)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, v)
	default:
		if err := cmds.SetGraphConfig(ctx, index, key, value); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s of graph %d set to %q\n", key, index, value)
	}
	return nil
}

// --- Вспомогательные функции ---

// flag возвращает значение булевого аргумента docopt.
func flag(opts docopt.Opts, name string) bool {
	v, _ := opts.Bool(name)
	return v
}

// intOpt разбирает целочисленный аргумент docopt.
func intOpt(opts docopt.Opts, name string) (int, error) {
	n, err := opts.Int(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %s должно быть целым числом", errUsage, name)
	}
	return n, nil
}

// withIndex разбирает <index> и вызывает fn.
func withIndex(opts docopt.Opts, fn func(index int) error) error {
	index, err := intOpt(opts, "<index>")
	if err != nil {
		return err
	}
	return fn(index)
}

// formatCeiling форматирует потолок шкалы: 0 — автомасштаб.
func formatCeiling(v int64) string {
	if v == 0 {
		return "auto"
	}
	return humanize.Comma(v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
