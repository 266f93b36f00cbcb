package assembler

import "github.com/conneroisu/livepad/internal/diagnostics"

// DiagnosticsSource tags every message the bridge posts to the embedding page.
const DiagnosticsSource = diagnostics.Source

// bridgeScript runs inside the user's closure before any user code. It taps
// the console, reports uncaught errors and rejections, and exposes __report
// for the failure boundary around the user script.
const bridgeScript = `var __console = {
                log: console.log,
                info: console.info,
                warn: console.warn,
                error: console.error
            };

            function __format(args) {
                return Array.prototype.map.call(args, function(arg) {
                    if (typeof arg === 'string') {
                        return arg;
                    }
                    if (arg instanceof Error) {
                        return arg.message;
                    }
                    try {
                        return JSON.stringify(arg);
                    } catch (e) {
                        return String(arg);
                    }
                }).join(' ');
            }

            function __report(kind, level, message, line) {
                if (window.parent === window) {
                    return;
                }
                try {
                    window.parent.postMessage({
                        source: '` + DiagnosticsSource + `',
                        kind: kind,
                        level: level,
                        message: message,
                        line: line || 0
                    }, '*');
                } catch (e) {
                    __console.error.call(console, e);
                }
            }

            ['log', 'info', 'warn', 'error'].forEach(function(level) {
                console[level] = function() {
                    __console[level].apply(console, arguments);
                    __report('console', level, __format(arguments), 0);
                };
            });

            window.addEventListener('error', function(event) {
                __report('runtime-error', 'error', 'Runtime Error: ' + event.message, event.lineno);
                event.preventDefault();
            });

            window.addEventListener('unhandledrejection', function(event) {
                var reason = event.reason instanceof Error ? event.reason.message : String(event.reason);
                __report('unhandled-rejection', 'error', 'Unhandled Promise Rejection: ' + reason, 0);
                event.preventDefault();
            });`
